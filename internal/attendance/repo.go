package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/ledger"
)

// Repository persists attendance data. The SQL runs on Postgres (pgx) and
// SQLite alike.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		course_id TEXT NOT NULL DEFAULT '',
		course_offering_id TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		instructor_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		student_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		section_id TEXT NOT NULL REFERENCES sections(id),
		attendance_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (student_id, section_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		section_id TEXT NOT NULL REFERENCES sections(id),
		enrollment_id TEXT NOT NULL DEFAULT '',
		day TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (student_id, section_id, day)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_records_section_day ON attendance_records (section_id, day)`,
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertSection creates or replaces a section.
func (r *Repository) UpsertSection(ctx context.Context, s Section) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sections (id, code, course_id, course_offering_id, schedule, instructor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			course_id = EXCLUDED.course_id,
			course_offering_id = EXCLUDED.course_offering_id,
			schedule = EXCLUDED.schedule,
			instructor_id = EXCLUDED.instructor_id
	`, s.ID, s.Code, s.CourseID, s.CourseOfferingID, s.Schedule, s.InstructorID)
	return err
}

// UpsertStudent creates or updates a student.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, student_number, name, photo_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			student_number = EXCLUDED.student_number,
			name = EXCLUDED.name,
			photo_url = EXCLUDED.photo_url
	`, s.ID, s.StudentNumber, s.Name, s.PhotoURL)
	return err
}

// Enroll registers a student in a section and returns the enrollment.
func (r *Repository) Enroll(ctx context.Context, studentID, sectionID string) (Enrollment, error) {
	e := Enrollment{ID: uuid.NewString(), StudentID: studentID, SectionID: sectionID}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO enrollments (id, student_id, section_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, section_id) DO UPDATE SET student_id = EXCLUDED.student_id
		RETURNING id, attendance_percentage
	`, e.ID, studentID, sectionID)
	if err := row.Scan(&e.ID, &e.AttendancePercentage); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// GetSection returns a section by id.
func (r *Repository) GetSection(ctx context.Context, id string) (Section, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, course_id, course_offering_id, schedule, instructor_id
		FROM sections WHERE id = $1
	`, id)
	var s Section
	if err := row.Scan(&s.ID, &s.Code, &s.CourseID, &s.CourseOfferingID, &s.Schedule, &s.InstructorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Section{}, ErrNotFound
		}
		return Section{}, err
	}
	return s, nil
}

// FindStudent looks a student up by backend id or student number.
func (r *Repository) FindStudent(ctx context.Context, id string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_number, name, photo_url
		FROM students WHERE id = $1 OR student_number = $1
		LIMIT 1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.StudentNumber, &s.Name, &s.PhotoURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	return s, nil
}

// GetEnrollment returns the enrollment of a student in a section.
func (r *Repository) GetEnrollment(ctx context.Context, studentID, sectionID string) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, section_id, attendance_percentage
		FROM enrollments WHERE student_id = $1 AND section_id = $2
	`, studentID, sectionID)
	var e Enrollment
	if err := row.Scan(&e.ID, &e.StudentID, &e.SectionID, &e.AttendancePercentage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, err
	}
	return e, nil
}

// SetEnrollmentPercentage stores a recomputed attendance percentage.
func (r *Repository) SetEnrollmentPercentage(ctx context.Context, enrollmentID string, pct float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE enrollments SET attendance_percentage = $1 WHERE id = $2`, pct, enrollmentID)
	return err
}

// UpsertRecord writes the record for (student, section, day). An existing
// row is overwritten in place and keeps its id and created_at.
func (r *Repository) UpsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, section_id, enrollment_id, day, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (student_id, section_id, day) DO UPDATE SET
			status = EXCLUDED.status,
			enrollment_id = CASE WHEN EXCLUDED.enrollment_id <> '' THEN EXCLUDED.enrollment_id ELSE attendance_records.enrollment_id END,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.StudentID, rec.SectionID, rec.EnrollmentID, rec.Day, string(rec.Status), rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return r.GetRecord(ctx, rec.StudentID, rec.SectionID, rec.Day)
}

// GetRecord returns the record for a student in a section on a day.
func (r *Repository) GetRecord(ctx context.Context, studentID, sectionID, day string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, section_id, enrollment_id, day, status, created_at, updated_at
		FROM attendance_records
		WHERE student_id = $1 AND section_id = $2 AND day = $3
	`, studentID, sectionID, day)
	var rec Record
	var status string
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.SectionID, &rec.EnrollmentID, &rec.Day, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.Status = ledger.Status(status)
	return rec, nil
}

// StatusCounts tallies a student's records in a section across all days.
func (r *Repository) StatusCounts(ctx context.Context, studentID, sectionID string) (present, absent, excused int, err error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM attendance_records
		WHERE student_id = $1 AND section_id = $2
		GROUP BY status
	`, studentID, sectionID)
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, 0, err
		}
		switch ledger.Status(status) {
		case ledger.Present:
			present = n
		case ledger.Absent:
			absent = n
		case ledger.Excused:
			excused = n
		}
	}
	return present, absent, excused, rows.Err()
}

// ListRoster returns the students enrolled in a section.
func (r *Repository) ListRoster(ctx context.Context, sectionID string) ([]RosterRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_number, s.name, s.photo_url, e.id, e.attendance_percentage
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.section_id = $1
		ORDER BY s.name, s.student_number
	`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []RosterRow{}
	for rows.Next() {
		var row RosterRow
		if err := rows.Scan(&row.Student.ID, &row.Student.StudentNumber, &row.Student.Name, &row.Student.PhotoURL, &row.EnrollmentID, &row.AttendancePercentage); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// SectionRecords returns the statuses recorded for a section on a day.
func (r *Repository) SectionRecords(ctx context.Context, sectionID, day string) ([]DayRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_number, s.name, s.photo_url, a.status
		FROM attendance_records a
		JOIN students s ON s.id = a.student_id
		WHERE a.section_id = $1 AND a.day = $2
		ORDER BY s.student_number
	`, sectionID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []DayRecord{}
	for rows.Next() {
		var rec DayRecord
		var status string
		if err := rows.Scan(&rec.Student.ID, &rec.Student.StudentNumber, &rec.Student.Name, &rec.Student.PhotoURL, &status); err != nil {
			return nil, err
		}
		rec.Status = ledger.Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SectionSummary counts enrolled students and their statuses on a day.
func (r *Repository) SectionSummary(ctx context.Context, sectionID, day string) (Summary, error) {
	sum := Summary{SectionID: sectionID, Date: day}
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1`, sectionID)
	if err := row.Scan(&sum.Enrolled); err != nil {
		return Summary{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT a.status, COUNT(*)
		FROM attendance_records a
		JOIN enrollments e ON e.student_id = a.student_id AND e.section_id = a.section_id
		WHERE a.section_id = $1 AND a.day = $2
		GROUP BY a.status
	`, sectionID, day)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Summary{}, err
		}
		switch ledger.Status(status) {
		case ledger.Present:
			sum.Present = n
		case ledger.Absent:
			sum.Absent = n
		case ledger.Excused:
			sum.Excused = n
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	if marked := sum.Present + sum.Absent + sum.Excused; sum.Enrolled > marked {
		sum.Unmarked = sum.Enrolled - marked
	}
	return sum, nil
}
