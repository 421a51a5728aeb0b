package api_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/backend"
	"qrattend/internal/ledger"
	"qrattend/internal/scan"
	"qrattend/internal/session"
)

func TestScanningSessionAgainstBackend(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	day := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	client := backend.New(srv.URL, f.token)

	s := session.New(client, session.Config{Debounce: time.Millisecond})
	t.Cleanup(s.Close)
	require.NoError(t, s.Open(ctx, scan.Section{ID: "sec1", CourseOfferingID: "off1"}, day))
	require.Len(t, s.Roster(), 2)

	mark, err := s.ResolveScan(ctx, `{"studentId":"2023-1234","sectionId":"off1"}`)
	require.NoError(t, err)
	assert.Equal(t, "Ana", mark.Name)
	assert.Equal(t, ledger.Present, mark.Status)
	assert.Equal(t, 100.0, mark.Percentage)

	mark, err = s.MarkStatus(ctx, "2023-5678", ledger.Absent)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mark.Percentage)

	_, err = s.ResolveScan(ctx, "2099-0000")
	assert.ErrorIs(t, err, &scan.ScanError{Kind: scan.StudentNotFound})

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, sum.Degraded)
	assert.Equal(t, 1, sum.Present)
	assert.Equal(t, 1, sum.Absent)

	// A second device opening the same section sees the confirmed marks.
	other := session.New(backend.New(srv.URL, f.token), session.Config{})
	t.Cleanup(other.Close)
	require.NoError(t, other.Open(ctx, scan.Section{ID: "sec1"}, day))
	assert.Equal(t, map[string]ledger.Status{
		"2023-1234": ledger.Present,
		"2023-5678": ledger.Absent,
	}, other.LedgerSnapshot())
}

func TestBackendRejectionIsNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL, f.token)
	_, err := client.Record(context.Background(), backend.RecordRequest{StudentID: "u1", SectionID: "sec1", Date: "not-a-date"})
	var serr *backend.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 400, serr.Status)
	assert.False(t, backend.IsTransient(err))
}
