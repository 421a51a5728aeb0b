package summary_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/ledger"
	"qrattend/internal/queue"
	"qrattend/internal/summary"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Summary(ctx context.Context, sectionID, date string) (attendance.Summary, error) {
	s.calls++
	return attendance.Summary{SectionID: sectionID, Date: date, Enrolled: 3, Present: s.calls}, s.err
}

func TestCachedReadsThrough(t *testing.T) {
	ctx := context.Background()
	store := summary.NewMemoryStore()
	src := &countingSource{}

	sum, err := summary.Cached(ctx, store, src, "sec1", "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Present)

	sum, err = summary.Cached(ctx, store, src, "sec1", "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Present)
	assert.Equal(t, 1, src.calls)
}

func TestRefreshOverwrites(t *testing.T) {
	ctx := context.Background()
	store := summary.NewMemoryStore()
	src := &countingSource{}

	_, err := summary.Cached(ctx, store, src, "sec1", "2026-10-19")
	require.NoError(t, err)
	_, err = summary.Refresh(ctx, store, src, "sec1", "2026-10-19")
	require.NoError(t, err)

	sum, ok, err := store.Get(ctx, "sec1", "2026-10-19")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, sum.Present)
}

func TestCachedPropagatesSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	_, err := summary.Cached(context.Background(), summary.NewMemoryStore(), src, "sec1", "2026-10-19")
	assert.Error(t, err)
}

func TestHandleMessageRefreshes(t *testing.T) {
	ctx := context.Background()
	store := summary.NewMemoryStore()
	src := &countingSource{}

	msg, err := queue.NewMessage(queue.TypeAttendanceChanged, attendance.ChangeEvent{
		SectionID: "sec1", Date: "2026-10-19", StudentID: "u1", Status: ledger.Present,
	})
	require.NoError(t, err)
	sum, ok, err := summary.HandleMessage(ctx, store, src, msg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, sum.Present)

	got, found, err := store.Get(ctx, "sec1", "2026-10-19")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sum, got)
}

func TestHandleMessageSkipsOthers(t *testing.T) {
	src := &countingSource{}
	_, ok, err := summary.HandleMessage(context.Background(), summary.NewMemoryStore(), src, queue.Message{Type: "checkin"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = summary.HandleMessage(context.Background(), summary.NewMemoryStore(), src, queue.Message{Type: queue.TypeAttendanceChanged, Body: []byte("{")})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, src.calls)
}

func TestConsumeDrainsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewInMemory(1)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	store := summary.NewMemoryStore()
	src := &countingSource{}
	done := make(chan struct{})
	go func() {
		summary.Consume(ctx, slog.Default(), msgs, store, src)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		msg, err := queue.NewMessage(queue.TypeAttendanceChanged, attendance.ChangeEvent{SectionID: "sec1", Date: "2026-10-19"})
		require.NoError(t, err)
		require.NoError(t, q.Publish(ctx, msg))
	}
	require.Eventually(t, func() bool {
		sum, ok, _ := store.Get(ctx, "sec1", "2026-10-19")
		return ok && sum.Present == 10
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
