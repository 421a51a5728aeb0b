package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/ledger"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

func setup(t *testing.T) (*attendance.Repository, *attendance.Service, *queue.InMemory) {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewDB(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := attendance.NewRepository(db.Client)
	require.NoError(t, repo.Migrate(ctx))

	require.NoError(t, repo.UpsertSection(ctx, attendance.Section{ID: "sec1", Code: "CS101-A", CourseOfferingID: "off1"}))
	require.NoError(t, repo.UpsertStudent(ctx, attendance.Student{ID: "u1", StudentNumber: "2023-1234", Name: "Ana"}))
	require.NoError(t, repo.UpsertStudent(ctx, attendance.Student{ID: "u2", StudentNumber: "2023-5678", Name: "Ben"}))
	require.NoError(t, repo.UpsertStudent(ctx, attendance.Student{ID: "u3", StudentNumber: "2023-0000", Name: "Cy"}))
	_, err = repo.Enroll(ctx, "u1", "sec1")
	require.NoError(t, err)
	_, err = repo.Enroll(ctx, "u2", "sec1")
	require.NoError(t, err)

	q := queue.NewInMemory(16)
	return repo, attendance.NewService(repo, q, nil), q
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, attendance.Percentage(0, 0))
	assert.Equal(t, 100.0, attendance.Percentage(3, 0))
	assert.Equal(t, 75.0, attendance.Percentage(3, 1))
}

func TestRecordMarksPresentAndComputesPercentage(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	res, err := svc.Record(ctx, attendance.MarkInput{StudentID: "2023-1234", SectionID: "sec1", Date: "2026-10-19"})
	require.NoError(t, err)
	assert.Equal(t, ledger.Present, res.Record.Status)
	assert.Equal(t, "u1", res.Record.StudentID)
	assert.Equal(t, 100.0, res.Percentage)

	res, err = svc.Mark(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "2026-10-20", Status: ledger.Absent})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Percentage)

	// excused days are not counted
	res, err = svc.Mark(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "2026-10-21", Status: ledger.Excused})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Percentage)
}

func TestOneRecordPerStudentSectionDay(t *testing.T) {
	repo, svc, _ := setup(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "2026-10-19"})
	require.NoError(t, err)
	second, err := svc.Mark(ctx, attendance.MarkInput{StudentID: "2023-1234", SectionID: "sec1", Date: "2026-10-19", Status: ledger.Absent})
	require.NoError(t, err)

	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.True(t, first.Record.CreatedAt.Equal(second.Record.CreatedAt))
	assert.Equal(t, 0.0, second.Percentage)

	recs, err := repo.SectionRecords(ctx, "sec1", "2026-10-19")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.Absent, recs[0].Status)
	assert.Equal(t, "2023-1234", recs[0].Student.StudentNumber)
}

func TestMarkValidation(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	var verr *attendance.ValidationError
	_, err := svc.Record(ctx, attendance.MarkInput{SectionID: "sec1", Date: "2026-10-19"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Record(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "19/10/2026"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Mark(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "2026-10-19", Status: "late"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Record(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "2026-10-19", EnrollmentID: "other"})
	assert.ErrorAs(t, err, &verr)
}

func TestMarkUnknownAndUnenrolled(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, attendance.MarkInput{StudentID: "nobody", SectionID: "sec1", Date: "2026-10-19"})
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	_, err = svc.Record(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "nope", Date: "2026-10-19"})
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	_, err = svc.Record(ctx, attendance.MarkInput{StudentID: "u3", SectionID: "sec1", Date: "2026-10-19"})
	assert.True(t, errors.Is(err, attendance.ErrNotEnrolled))
}

func TestMarkPublishesChange(t *testing.T) {
	_, svc, q := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := svc.Record(ctx, attendance.MarkInput{StudentID: "u2", SectionID: "sec1", Date: "2026-10-19"})
	require.NoError(t, err)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-ch:
		assert.Equal(t, queue.TypeAttendanceChanged, msg.Type)
		var evt attendance.ChangeEvent
		require.NoError(t, msg.Decode(&evt))
		assert.Equal(t, attendance.ChangeEvent{SectionID: "sec1", Date: "2026-10-19", StudentID: "u2", Status: ledger.Present}, evt)
	case <-time.After(time.Second):
		t.Fatal("no change event published")
	}
}

func TestRosterAndSummary(t *testing.T) {
	repo, svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, attendance.MarkInput{StudentID: "u1", SectionID: "sec1", Date: "2026-10-19"})
	require.NoError(t, err)

	rows, err := svc.Roster(ctx, "sec1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana", rows[0].Student.Name)
	assert.Equal(t, 100.0, rows[0].AttendancePercentage)
	assert.Equal(t, 0.0, rows[1].AttendancePercentage)

	sum, err := svc.Summary(ctx, "sec1", "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, attendance.Summary{SectionID: "sec1", Date: "2026-10-19", Enrolled: 2, Present: 1, Unmarked: 1}, sum)

	_, err = repo.GetRecord(ctx, "u2", "sec1", "2026-10-19")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	_, err = svc.Roster(ctx, "missing")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}
