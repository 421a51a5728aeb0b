package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qrattend/internal/ledger"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

// ChangeEvent is published after every write so summaries can be refreshed.
type ChangeEvent struct {
	SectionID string        `json:"sectionId"`
	Date      string        `json:"date"`
	StudentID string        `json:"studentId"`
	Status    ledger.Status `json:"status"`
}

// Publisher is satisfied by queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// MarkInput is a status write for one student in one section on one day.
// StudentID may be the backend id or the student number.
type MarkInput struct {
	StudentID    string
	SectionID    string
	Date         string
	EnrollmentID string
	Status       ledger.Status
}

// MarkResult is the stored record and the recomputed percentage.
type MarkResult struct {
	Record     Record
	Percentage float64
}

// Service coordinates attendance writes and percentage recomputation.
type Service struct {
	repo   *Repository
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a service backed by a repository. pub may be nil.
func NewService(repo *Repository, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, now: time.Now}
}

// Record marks a scanned student present.
func (s *Service) Record(ctx context.Context, in MarkInput) (MarkResult, error) {
	in.Status = ledger.Present
	return s.Mark(ctx, in)
}

// Mark writes the student's status for the day, overwriting any earlier
// status, and recomputes the enrollment's attendance percentage.
func (s *Service) Mark(ctx context.Context, in MarkInput) (MarkResult, error) {
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.SectionID = strings.TrimSpace(in.SectionID)
	if in.StudentID == "" {
		return MarkResult{}, &ValidationError{Field: "studentId", Reason: "required"}
	}
	if in.SectionID == "" {
		return MarkResult{}, &ValidationError{Field: "sectionId", Reason: "required"}
	}
	if !in.Status.Valid() {
		return MarkResult{}, &ValidationError{Field: "status", Reason: "must be present, absent or excused"}
	}
	day, err := ParseDay(in.Date)
	if err != nil {
		return MarkResult{}, err
	}

	if _, err := s.repo.GetSection(ctx, in.SectionID); err != nil {
		return MarkResult{}, fmt.Errorf("section %s: %w", in.SectionID, err)
	}
	student, err := s.repo.FindStudent(ctx, in.StudentID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("student %s: %w", in.StudentID, err)
	}
	enrollment, err := s.repo.GetEnrollment(ctx, student.ID, in.SectionID)
	if errors.Is(err, ErrNotFound) {
		return MarkResult{}, ErrNotEnrolled
	} else if err != nil {
		return MarkResult{}, err
	}
	if in.EnrollmentID != "" && in.EnrollmentID != enrollment.ID {
		return MarkResult{}, &ValidationError{Field: "enrollmentId", Reason: "does not match the student's enrollment"}
	}

	rec, err := s.repo.UpsertRecord(ctx, Record{
		StudentID:    student.ID,
		SectionID:    in.SectionID,
		EnrollmentID: enrollment.ID,
		Day:          day,
		Status:       in.Status,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		return MarkResult{}, fmt.Errorf("upsert record: %w", err)
	}
	metrics.RecordsWritten.WithLabelValues(string(in.Status)).Inc()

	present, absent, _, err := s.repo.StatusCounts(ctx, student.ID, in.SectionID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("count records: %w", err)
	}
	pct := Percentage(present, absent)
	if err := s.repo.SetEnrollmentPercentage(ctx, enrollment.ID, pct); err != nil {
		return MarkResult{}, fmt.Errorf("store percentage: %w", err)
	}

	s.publish(ctx, ChangeEvent{SectionID: in.SectionID, Date: day, StudentID: student.ID, Status: in.Status})
	return MarkResult{Record: rec, Percentage: pct}, nil
}

func (s *Service) publish(ctx context.Context, evt ChangeEvent) {
	if s.pub == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypeAttendanceChanged, evt)
	if err == nil {
		err = s.pub.Publish(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("queue publish failed", "section", evt.SectionID, "date", evt.Date, "err", err)
	}
}

// Roster lists the students enrolled in a section.
func (s *Service) Roster(ctx context.Context, sectionID string) ([]RosterRow, error) {
	if _, err := s.repo.GetSection(ctx, sectionID); err != nil {
		return nil, fmt.Errorf("section %s: %w", sectionID, err)
	}
	return s.repo.ListRoster(ctx, sectionID)
}

// DayRecords lists the statuses recorded for a section on date.
func (s *Service) DayRecords(ctx context.Context, sectionID, date string) ([]DayRecord, error) {
	day, err := ParseDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.SectionRecords(ctx, sectionID, day)
}

// Summary computes the dashboard counts for a section on date.
func (s *Service) Summary(ctx context.Context, sectionID, date string) (Summary, error) {
	day, err := ParseDay(date)
	if err != nil {
		return Summary{}, err
	}
	if _, err := s.repo.GetSection(ctx, sectionID); err != nil {
		return Summary{}, fmt.Errorf("section %s: %w", sectionID, err)
	}
	return s.repo.SectionSummary(ctx, sectionID, day)
}

// ImportRoster upserts a section and its students and enrolls each of
// them. Existing enrollments keep their percentage.
func (s *Service) ImportRoster(ctx context.Context, section Section, students []Student) ([]RosterRow, error) {
	section.ID = strings.TrimSpace(section.ID)
	if section.ID == "" {
		return nil, &ValidationError{Field: "section.id", Reason: "required"}
	}
	if err := s.repo.UpsertSection(ctx, section); err != nil {
		return nil, fmt.Errorf("upsert section: %w", err)
	}
	for i, st := range students {
		if strings.TrimSpace(st.ID) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("students[%d].id", i), Reason: "required"}
		}
		if err := s.repo.UpsertStudent(ctx, st); err != nil {
			return nil, fmt.Errorf("upsert student %s: %w", st.ID, err)
		}
		if _, err := s.repo.Enroll(ctx, st.ID, section.ID); err != nil {
			return nil, fmt.Errorf("enroll %s: %w", st.ID, err)
		}
	}
	s.logger.Info("roster imported", "section", section.ID, "students", len(students))
	return s.repo.ListRoster(ctx, section.ID)
}
