package attendance

import (
	"errors"
	"time"

	"qrattend/internal/ledger"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNotEnrolled = errors.New("student is not enrolled in section")
)

// ValidationError reports bad input from a caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// Section is a scheduled offering of a course.
type Section struct {
	ID               string `json:"id"`
	Code             string `json:"code"`
	CourseID         string `json:"courseId"`
	CourseOfferingID string `json:"courseOfferingId,omitempty"`
	Schedule         string `json:"schedule"`
	InstructorID     string `json:"instructorId"`
}

// Student is a registered student. StudentNumber is the external id
// printed on badges.
type Student struct {
	ID            string `json:"id"`
	StudentNumber string `json:"studentId"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photoUrl,omitempty"`
}

// Enrollment carries the backend-computed attendance percentage.
type Enrollment struct {
	ID                   string  `json:"id"`
	StudentID            string  `json:"studentId"`
	SectionID            string  `json:"sectionId"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

// Record is the single attendance row for a student in a section on a day.
type Record struct {
	ID           string
	StudentID    string
	SectionID    string
	EnrollmentID string
	Day          string
	Status       ledger.Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RosterRow is one enrolled student.
type RosterRow struct {
	Student              Student `json:"student"`
	EnrollmentID         string  `json:"enrollmentId"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

// DayRecord is a confirmed status joined with its student.
type DayRecord struct {
	Student Student       `json:"student"`
	Status  ledger.Status `json:"status"`
}

// Summary is the dashboard count for a section on a day.
type Summary struct {
	SectionID string `json:"sectionId"`
	Date      string `json:"date"`
	Enrolled  int    `json:"enrolled"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Excused   int    `json:"excused"`
	Unmarked  int    `json:"unmarked"`
}

// Percentage is present days over counted days. Excused days are not
// counted; with nothing counted the result is 0.
func Percentage(present, absent int) float64 {
	total := present + absent
	if total == 0 {
		return 0
	}
	return float64(present) * 100 / float64(total)
}

// ParseDay validates a YYYY-MM-DD date.
func ParseDay(s string) (string, error) {
	t, err := time.Parse(ledger.DateLayout, s)
	if err != nil {
		return "", &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return t.Format(ledger.DateLayout), nil
}
