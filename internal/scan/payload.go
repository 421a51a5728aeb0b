package scan

import (
	"encoding/json"
	"strings"
	"time"
)

// QRPayload is the structured form of a scanned code.
type QRPayload struct {
	StudentID    string     `json:"studentId"`
	SectionID    string     `json:"sectionId,omitempty"`
	EnrollmentID string     `json:"enrollmentId,omitempty"`
	Name         string     `json:"name,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// Payload is either Bare or Structured.
type Payload interface {
	StudentID() string
	isPayload()
}

// Bare is a code carrying only a student id, as printed by older badges.
type Bare string

func (b Bare) StudentID() string { return string(b) }
func (Bare) isPayload()          {}

// Structured wraps a decoded JSON payload.
type Structured struct {
	QRPayload
}

func (s Structured) StudentID() string { return s.QRPayload.StudentID }
func (Structured) isPayload()          {}

// timestampLayouts are tried in order; codes printed without an offset
// are read as UTC.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05"}

// Normalize turns raw scanner output into a Payload. Text that is not a
// JSON object, or an object without a student id, is a bare student id.
// Fields of an unexpected type are ignored rather than failing the code.
func Normalize(raw string) (Payload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Kind: EmptyPayload}
	}
	if !strings.HasPrefix(trimmed, "{") {
		return Bare(trimmed), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return Bare(trimmed), nil
	}
	id := scalar(fields["studentId"])
	if id == "" {
		id = scalar(fields["student_id"])
	}
	if id == "" {
		return Bare(trimmed), nil
	}
	return Structured{QRPayload{
		StudentID:    id,
		SectionID:    scalar(fields["sectionId"]),
		EnrollmentID: scalar(fields["enrollmentId"]),
		Name:         text(fields["name"]),
		Timestamp:    timestamp(fields["timestamp"]),
	}}, nil
}

// scalar reads a JSON string or number as trimmed text.
func scalar(raw json.RawMessage) string {
	if s := strings.TrimSpace(text(raw)); s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func text(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func timestamp(raw json.RawMessage) *time.Time {
	s := strings.TrimSpace(text(raw))
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
