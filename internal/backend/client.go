package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qrattend/internal/ledger"
	"qrattend/internal/roster"
)

// RecordRequest is the body of POST /attendance/record.
type RecordRequest struct {
	StudentID    string `json:"studentId"`
	SectionID    string `json:"sectionId"`
	Date         string `json:"date"`
	EnrollmentID string `json:"enrollmentId,omitempty"`
}

// StatusRequest is the body of POST /attendance/status.
type StatusRequest struct {
	StudentID string        `json:"studentId"`
	SectionID string        `json:"sectionId"`
	Date      string        `json:"date"`
	Status    ledger.Status `json:"status"`
}

// MarkResult is returned by both mutation endpoints. The percentage is
// absent when the backend did not recompute it.
type MarkResult struct {
	AttendancePercentage *float64 `json:"attendancePercentage,omitempty"`
}

// ServerRecord is one confirmed status in a section's day listing.
type ServerRecord struct {
	Student roster.Student `json:"student"`
	Status  ledger.Status  `json:"status"`
}

// Summary holds dashboard counts for a section on one day.
type Summary struct {
	SectionID string `json:"sectionId"`
	Date      string `json:"date"`
	Enrolled  int    `json:"enrolled"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Excused   int    `json:"excused"`
	Unmarked  int    `json:"unmarked"`
}

// Client calls the attendance backend. Deadlines come from the caller's
// context; HTTP.Timeout is only a last-resort cap.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Roster fetches the enrolled students of a section.
func (c *Client) Roster(ctx context.Context, sectionID string) ([]roster.Entry, error) {
	var out struct {
		Students []roster.Entry `json:"students"`
	}
	path := "/sections/" + url.PathEscape(sectionID) + "/students"
	if err := c.do(ctx, "roster", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

// SectionAttendance lists the confirmed statuses for a section on date.
func (c *Client) SectionAttendance(ctx context.Context, sectionID, date string) ([]ServerRecord, error) {
	var out struct {
		Records []ServerRecord `json:"records"`
	}
	path := "/attendance/section/" + url.PathEscape(sectionID) + "?date=" + url.QueryEscape(date)
	if err := c.do(ctx, "section attendance", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Record marks a scanned student present.
func (c *Client) Record(ctx context.Context, req RecordRequest) (MarkResult, error) {
	var out MarkResult
	err := c.do(ctx, "record", http.MethodPost, "/attendance/record", req, &out)
	return out, err
}

// SetStatus writes an explicit status for a student.
func (c *Client) SetStatus(ctx context.Context, req StatusRequest) (MarkResult, error) {
	var out MarkResult
	err := c.do(ctx, "set status", http.MethodPost, "/attendance/status", req, &out)
	return out, err
}

// Summary fetches dashboard counts for a section on date.
func (c *Client) Summary(ctx context.Context, sectionID, date string) (Summary, error) {
	var out Summary
	path := "/sections/" + url.PathEscape(sectionID) + "/summary?date=" + url.QueryEscape(date)
	err := c.do(ctx, "summary", http.MethodGet, path, nil, &out)
	return out, err
}

// Health checks if the backend is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(op, err)
	}

	if resp.StatusCode >= 300 {
		return rejection(op, resp, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// rejection turns a non-2xx response into a ServerError when the body is
// the backend's JSON error envelope. Bare 5xx pages come from proxies in
// front of an unreachable backend and are treated as transport failures.
func rejection(op string, resp *http.Response, data []byte) error {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		msg := envelope.Error
		if msg == "" {
			msg = envelope.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode >= 500 {
		return &NetworkError{Kind: Unreachable, Op: op, Err: fmt.Errorf("backend error %s: %s", resp.Status, string(data))}
	}
	return &ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
