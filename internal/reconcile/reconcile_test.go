package reconcile_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/backend"
	"qrattend/internal/ledger"
	"qrattend/internal/reconcile"
	"qrattend/internal/retry"
	"qrattend/internal/roster"
)

type fakeFetcher struct {
	records []backend.ServerRecord
	err     error
	calls   atomic.Int32
}

func (f *fakeFetcher) SectionAttendance(ctx context.Context, sectionID, date string) ([]backend.ServerRecord, error) {
	f.calls.Add(1)
	return f.records, f.err
}

var key = ledger.Key{SectionID: "sec1", Date: "2026-10-19"}

func rec(id string, s ledger.Status) backend.ServerRecord {
	return backend.ServerRecord{Student: roster.Student{StudentID: id}, Status: s}
}

func policy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, Timeouts: []time.Duration{time.Second}, RetryIf: backend.IsTransient}
}

func TestLocalEntryWins(t *testing.T) {
	l := ledger.New()
	l.Open(key)
	_, err := l.Set(key, "S1", ledger.Present)
	require.NoError(t, err)

	f := &fakeFetcher{records: []backend.ServerRecord{rec("S1", ledger.Absent), rec("S2", ledger.Excused)}}
	adopted, err := reconcile.New(f, l, policy(), nil).Reconcile(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, adopted)

	s, _ := l.Get("S1")
	assert.Equal(t, ledger.Present, s)
	s, _ = l.Get("S2")
	assert.Equal(t, ledger.Excused, s)
}

func TestNetworkFailureLeavesLedger(t *testing.T) {
	l := ledger.New()
	l.Open(key)
	_, _ = l.Set(key, "S1", ledger.Present)

	f := &fakeFetcher{err: &backend.NetworkError{Kind: backend.Unreachable, Op: "section attendance", Err: errors.New("refused")}}
	_, err := reconcile.New(f, l, policy(), nil).Reconcile(context.Background(), key)
	assert.True(t, backend.IsTransient(err))
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, map[string]ledger.Status{"S1": ledger.Present}, l.Snapshot())
}

func TestStaleKeyRejected(t *testing.T) {
	l := ledger.New()
	l.Open(ledger.Key{SectionID: "sec2", Date: key.Date})

	f := &fakeFetcher{records: []backend.ServerRecord{rec("S1", ledger.Absent)}}
	_, err := reconcile.New(f, l, policy(), nil).Reconcile(context.Background(), key)
	assert.ErrorIs(t, err, ledger.ErrStaleSession)
	assert.Empty(t, l.Snapshot())
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	l := ledger.New()
	l.Open(key)
	f := &fakeFetcher{records: []backend.ServerRecord{rec("S1", ledger.Absent)}}
	d := reconcile.NewDebouncer(reconcile.New(f, l, policy(), nil), 30*time.Millisecond)

	for i := 0; i < 10; i++ {
		d.RosterChanged(context.Background(), key, []string{"S1", "S2"})
	}
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestDebouncerSkipsWhenEveryoneMarked(t *testing.T) {
	l := ledger.New()
	l.Open(key)
	_, _ = l.Set(key, "S1", ledger.Present)
	f := &fakeFetcher{}
	d := reconcile.NewDebouncer(reconcile.New(f, l, policy(), nil), 10*time.Millisecond)

	d.RosterChanged(context.Background(), key, []string{"S1"})
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), f.calls.Load())
}
