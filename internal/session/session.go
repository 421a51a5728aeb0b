// Package session ties the scanning pipeline together for one open
// section: scan -> normalize -> resolve -> optimistic ledger write ->
// backend submit, plus roster loading and reconciliation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"qrattend/internal/backend"
	"qrattend/internal/ledger"
	"qrattend/internal/metrics"
	"qrattend/internal/reconcile"
	"qrattend/internal/retry"
	"qrattend/internal/roster"
	"qrattend/internal/scan"
)

// ErrScanInFlight is returned when a scan or mark arrives while the
// previous submission is still pending.
var ErrScanInFlight = errors.New("session: previous submission still pending")

// Backend is the subset of the backend client the session needs.
type Backend interface {
	reconcile.Fetcher
	Roster(ctx context.Context, sectionID string) ([]roster.Entry, error)
	Record(ctx context.Context, req backend.RecordRequest) (backend.MarkResult, error)
	SetStatus(ctx context.Context, req backend.StatusRequest) (backend.MarkResult, error)
	Summary(ctx context.Context, sectionID, date string) (backend.Summary, error)
}

// Mark is the outcome of an accepted scan or manual status change.
type Mark struct {
	StudentID  string
	Name       string
	Status     ledger.Status
	Previous   ledger.Status
	Percentage float64
}

// Summary is a dashboard view. Degraded is set when the counts were
// derived from the local ledger because the backend could not be reached.
type Summary struct {
	backend.Summary
	Degraded bool
}

type Config struct {
	Policy   retry.Policy
	Debounce time.Duration
	Cache    *roster.Cache
	Logger   *slog.Logger
}

type Session struct {
	backend  Backend
	ledger   *ledger.Ledger
	roster   *roster.Roster
	cache    *roster.Cache
	policy   retry.Policy
	recon    *reconcile.Engine
	debounce *reconcile.Debouncer
	logger   *slog.Logger

	mu      sync.Mutex
	section *scan.Section

	inFlight atomic.Bool
}

func New(b Backend, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if policy.RetryIf == nil {
		policy.RetryIf = backend.IsTransient
	}

	l := ledger.New()
	recon := reconcile.New(b, l, policy, logger)
	return &Session{
		backend:  b,
		ledger:   l,
		roster:   roster.New(nil),
		cache:    cfg.Cache,
		policy:   policy,
		recon:    recon,
		debounce: reconcile.NewDebouncer(recon, cfg.Debounce),
		logger:   logger,
	}
}

// Open selects section for date, loads its roster and reconciles the
// ledger with the server. The session stays usable when the roster could
// not be loaded; the returned error says why.
func (s *Session) Open(ctx context.Context, section scan.Section, date time.Time) error {
	if section.ID == "" {
		return &scan.ScanError{Kind: scan.MissingSectionContext}
	}
	s.debounce.Stop()
	key := ledger.NewKey(section.ID, date)
	s.ledger.Open(key)
	s.roster.Replace(nil)

	s.mu.Lock()
	sec := section
	s.section = &sec
	s.mu.Unlock()

	rosterErr := s.loadRoster(ctx, key)
	if _, err := s.recon.Reconcile(ctx, key); err != nil {
		s.logger.Warn("initial reconcile failed", "session", key.String(), "err", err)
	}
	return rosterErr
}

// Close discards the session state.
func (s *Session) Close() {
	s.debounce.Stop()
	s.ledger.Close()
	s.roster.Replace(nil)
	s.mu.Lock()
	s.section = nil
	s.mu.Unlock()
}

// Section returns the selected section, or nil.
func (s *Session) Section() *scan.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.section == nil {
		return nil
	}
	sec := *s.section
	return &sec
}

func (s *Session) current() (*scan.Section, ledger.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.section == nil {
		return nil, ledger.Key{}
	}
	sec := *s.section
	return &sec, s.ledger.Key()
}

// RefreshRoster reloads the roster and, if anyone on it is still
// unmarked, schedules a debounced reconcile.
func (s *Session) RefreshRoster(ctx context.Context) error {
	_, key := s.current()
	if key.SectionID == "" {
		return &scan.ScanError{Kind: scan.MissingSectionContext}
	}
	if err := s.loadRoster(ctx, key); err != nil {
		return err
	}
	s.RosterChanged(ctx)
	return nil
}

// RosterChanged notifies the session that the displayed roster changed.
func (s *Session) RosterChanged(ctx context.Context) {
	_, key := s.current()
	if key.SectionID == "" {
		return
	}
	s.debounce.RosterChanged(ctx, key, s.roster.Keys())
}

func (s *Session) loadRoster(ctx context.Context, key ledger.Key) error {
	entries, err := retry.DoValue(ctx, s.policyFor("roster"), func(ctx context.Context) ([]roster.Entry, error) {
		return s.backend.Roster(ctx, key.SectionID)
	})
	if err == nil {
		s.cache.Put(key.SectionID, entries)
		s.roster.Replace(entries)
		return nil
	}
	if !backend.IsTransient(err) {
		return fmt.Errorf("load roster for %s: %w", key.SectionID, err)
	}
	if cached, ok := s.cache.Get(key.SectionID); ok {
		s.logger.Warn("roster fetch failed, using cached roster", "section", key.SectionID, "students", len(cached), "err", err)
		s.roster.Replace(cached)
		return nil
	}
	return fmt.Errorf("load roster for %s: %w", key.SectionID, err)
}

// Roster returns the enrolled students with their displayed percentages.
func (s *Session) Roster() []roster.Entry {
	return s.roster.Entries()
}

// LedgerSnapshot returns a copy of the current session's statuses.
func (s *Session) LedgerSnapshot() map[string]ledger.Status {
	return s.ledger.Snapshot()
}

// Reconcile merges the server's records for the open session into the
// ledger and returns how many statuses were adopted.
func (s *Session) Reconcile(ctx context.Context) (int, error) {
	_, key := s.current()
	if key.SectionID == "" {
		return 0, &scan.ScanError{Kind: scan.MissingSectionContext}
	}
	return s.recon.Reconcile(ctx, key)
}

// ReconcileAsync runs Reconcile in the background; failures are logged.
func (s *Session) ReconcileAsync(ctx context.Context) {
	go func() {
		if _, err := s.Reconcile(ctx); err != nil {
			s.logger.Warn("reconcile failed", "err", err)
		}
	}()
}

// ResolveScan processes one raw scanned code: the student is marked
// present locally, then the mark is submitted. A failed submission rolls
// the ledger back and returns the error for the user to retry.
func (s *Session) ResolveScan(ctx context.Context, raw string) (Mark, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Mark{}, ErrScanInFlight
	}
	defer s.inFlight.Store(false)

	payload, err := scan.Normalize(raw)
	if err != nil {
		metrics.ScanResults.WithLabelValues(metrics.OutcomeParseError).Inc()
		return Mark{}, err
	}
	section, key := s.current()
	res, err := scan.Resolve(payload, section)
	if err != nil {
		metrics.ScanResults.WithLabelValues(metrics.OutcomeScanError).Inc()
		return Mark{}, err
	}

	id, name, enrollmentID := res.StudentID, res.Name, res.EnrollmentID
	if s.roster.Loaded() {
		entry, ok := s.roster.Lookup(id)
		if !ok {
			metrics.ScanResults.WithLabelValues(metrics.OutcomeScanError).Inc()
			return Mark{}, &scan.ScanError{Kind: scan.StudentNotFound, StudentID: id}
		}
		id = entry.Student.Key()
		name = entry.Student.Name
		if enrollmentID == "" {
			enrollmentID = entry.EnrollmentID
		}
	}

	mark, err := s.commit(ctx, key, id, ledger.Present, "record", func(ctx context.Context) (backend.MarkResult, error) {
		return s.backend.Record(ctx, backend.RecordRequest{
			StudentID:    id,
			SectionID:    key.SectionID,
			Date:         key.Date,
			EnrollmentID: enrollmentID,
		})
	})
	mark.Name = name
	return mark, err
}

// MarkStatus sets a student's status by hand.
func (s *Session) MarkStatus(ctx context.Context, studentID string, status ledger.Status) (Mark, error) {
	if !status.Valid() {
		return Mark{}, fmt.Errorf("session: invalid status %q", status)
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return Mark{}, ErrScanInFlight
	}
	defer s.inFlight.Store(false)

	_, key := s.current()
	if key.SectionID == "" {
		return Mark{}, &scan.ScanError{Kind: scan.MissingSectionContext}
	}
	id, name := studentID, ""
	if s.roster.Loaded() {
		entry, ok := s.roster.Lookup(studentID)
		if !ok {
			return Mark{}, &scan.ScanError{Kind: scan.StudentNotFound, StudentID: studentID}
		}
		id, name = entry.Student.Key(), entry.Student.Name
	}

	mark, err := s.commit(ctx, key, id, status, "set status", func(ctx context.Context) (backend.MarkResult, error) {
		return s.backend.SetStatus(ctx, backend.StatusRequest{
			StudentID: id,
			SectionID: key.SectionID,
			Date:      key.Date,
			Status:    status,
		})
	})
	mark.Name = name
	return mark, err
}

func (s *Session) commit(ctx context.Context, key ledger.Key, id string, status ledger.Status, op string, submit func(context.Context) (backend.MarkResult, error)) (Mark, error) {
	prev, err := s.ledger.Set(key, id, status)
	if err != nil {
		return Mark{}, err
	}

	result, err := retry.DoValue(ctx, s.policyFor(op), submit)
	if err != nil {
		if rerr := s.ledger.Restore(key, id, prev); rerr != nil {
			s.logger.Debug("rollback skipped", "student", id, "err", rerr)
		}
		outcome := metrics.OutcomeRejected
		if backend.IsTransient(err) {
			outcome = metrics.OutcomeNetworkError
		}
		metrics.ScanResults.WithLabelValues(outcome).Inc()
		s.logger.Warn("submission failed", "op", op, "student", id, "status", string(status), "err", err)
		return Mark{StudentID: id, Status: prev, Previous: prev}, fmt.Errorf("%s for %s: %w", op, id, err)
	}

	metrics.ScanResults.WithLabelValues(metrics.OutcomeOK).Inc()
	return Mark{
		StudentID:  id,
		Status:     status,
		Previous:   prev,
		Percentage: s.roster.ApplyPercentage(id, result.AttendancePercentage),
	}, nil
}

// Summary returns dashboard counts, computed locally from the ledger and
// roster when the backend is unreachable. Rejections are returned as is.
func (s *Session) Summary(ctx context.Context) (Summary, error) {
	_, key := s.current()
	if key.SectionID == "" {
		return Summary{}, &scan.ScanError{Kind: scan.MissingSectionContext}
	}
	remote, err := retry.DoValue(ctx, s.policyFor("summary"), func(ctx context.Context) (backend.Summary, error) {
		return s.backend.Summary(ctx, key.SectionID, key.Date)
	})
	if err == nil {
		return Summary{Summary: remote}, nil
	}
	if !backend.IsTransient(err) {
		return Summary{}, fmt.Errorf("summary for %s: %w", key.String(), err)
	}
	s.logger.Warn("summary fetch failed, using local counts", "session", key.String(), "err", err)

	counts := s.ledger.Counts()
	local := backend.Summary{
		SectionID: key.SectionID,
		Date:      key.Date,
		Enrolled:  len(s.roster.Keys()),
		Present:   counts[ledger.Present],
		Absent:    counts[ledger.Absent],
		Excused:   counts[ledger.Excused],
	}
	if marked := local.Present + local.Absent + local.Excused; local.Enrolled > marked {
		local.Unmarked = local.Enrolled - marked
	}
	return Summary{Summary: local, Degraded: true}, nil
}

func (s *Session) policyFor(op string) retry.Policy {
	p := s.policy
	p.OnRetry = func(attempt int, err error) {
		metrics.Retries.WithLabelValues(op).Inc()
		s.logger.Info("backend call failed", "op", op, "attempt", attempt, "err", err)
	}
	return p
}
