// Package reconcile merges server-confirmed attendance into the session
// ledger. Entries already set during the session always win over the
// server snapshot.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"qrattend/internal/backend"
	"qrattend/internal/ledger"
	"qrattend/internal/metrics"
	"qrattend/internal/retry"
)

// Fetcher lists the server's records for a section on a day.
type Fetcher interface {
	SectionAttendance(ctx context.Context, sectionID, date string) ([]backend.ServerRecord, error)
}

type Engine struct {
	fetch  Fetcher
	ledger *ledger.Ledger
	policy retry.Policy
	logger *slog.Logger
}

func New(fetch Fetcher, l *ledger.Ledger, policy retry.Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{fetch: fetch, ledger: l, policy: policy, logger: logger}
}

// Reconcile pulls the server's records for key and adopts each status for
// students the ledger has no entry for. It returns how many were adopted.
func (e *Engine) Reconcile(ctx context.Context, key ledger.Key) (int, error) {
	records, err := retry.DoValue(ctx, e.policy, func(ctx context.Context) ([]backend.ServerRecord, error) {
		return e.fetch.SectionAttendance(ctx, key.SectionID, key.Date)
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", key, err)
	}

	adopted := 0
	for _, rec := range records {
		id := rec.Student.Key()
		if id == "" {
			continue
		}
		ok, err := e.ledger.Adopt(key, id, rec.Status)
		if err != nil {
			// section switched while the fetch was in flight
			return adopted, fmt.Errorf("reconcile %s: %w", key, err)
		}
		if ok {
			adopted++
		}
	}
	metrics.ReconcileAdopted.Add(float64(adopted))
	e.logger.Debug("reconciled", "session", key.String(), "server_records", len(records), "adopted", adopted)
	return adopted, nil
}

// Debouncer coalesces roster-change notifications into at most one
// reconcile per quiet period.
type Debouncer struct {
	engine *Engine
	delay  time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(engine *Engine, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &Debouncer{engine: engine, delay: delay}
}

// RosterChanged schedules a reconcile of key if any of studentIDs has no
// ledger entry. Calls within the delay window replace the pending one.
func (d *Debouncer) RosterChanged(ctx context.Context, key ledger.Key, studentIDs []string) {
	if len(d.engine.ledger.Missing(studentIDs)) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		if _, err := d.engine.Reconcile(ctx, key); err != nil {
			d.engine.logger.Warn("debounced reconcile failed", "session", key.String(), "err", err)
		}
	})
}

// Stop cancels a pending reconcile.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
