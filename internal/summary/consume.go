package summary

import (
	"context"
	"log/slog"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

// HandleMessage refreshes the summary named by an attendance.changed
// message. Other message types are skipped and report false.
func HandleMessage(ctx context.Context, store Store, src Source, msg queue.Message) (attendance.Summary, bool, error) {
	if msg.Type != queue.TypeAttendanceChanged {
		return attendance.Summary{}, false, nil
	}
	var evt attendance.ChangeEvent
	if err := msg.Decode(&evt); err != nil {
		return attendance.Summary{}, false, err
	}

	start := time.Now()
	sum, err := Refresh(ctx, store, src, evt.SectionID, evt.Date)
	metrics.SummaryRefresh.Observe(time.Since(start).Seconds())
	if err != nil {
		return attendance.Summary{}, false, err
	}
	return sum, true, nil
}

// Consume handles messages until msgs is closed. Failures are logged and
// the message dropped.
func Consume(ctx context.Context, logger *slog.Logger, msgs <-chan queue.Message, store Store, src Source) {
	for msg := range msgs {
		sum, ok, err := HandleMessage(ctx, store, src, msg)
		if err != nil {
			logger.Warn("summary refresh failed", "id", msg.ID, "type", msg.Type, "err", err)
			continue
		}
		if ok {
			logger.Debug("summary refreshed", "section", sum.SectionID, "date", sum.Date, "present", sum.Present, "absent", sum.Absent)
		}
	}
}
