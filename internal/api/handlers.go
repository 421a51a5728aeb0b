package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/ledger"
	"qrattend/internal/summary"
)

type recordRequest struct {
	StudentID    string `json:"studentId" binding:"required"`
	SectionID    string `json:"sectionId" binding:"required"`
	Date         string `json:"date" binding:"required"`
	EnrollmentID string `json:"enrollmentId"`
}

type statusRequest struct {
	StudentID string        `json:"studentId" binding:"required"`
	SectionID string        `json:"sectionId" binding:"required"`
	Date      string        `json:"date" binding:"required"`
	Status    ledger.Status `json:"status" binding:"required"`
}

type markResponse struct {
	RecordID             string        `json:"recordId"`
	Status               ledger.Status `json:"status"`
	AttendancePercentage float64       `json:"attendancePercentage"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

func (s *server) roster(c *gin.Context) {
	rows, err := s.svc.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": rows})
}

func (s *server) sectionAttendance(c *gin.Context) {
	records, err := s.svc.DayRecords(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *server) summary(c *gin.Context) {
	day, err := attendance.ParseDay(c.Query("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	sum, err := summary.Cached(c.Request.Context(), s.sums, s.svc, c.Param("id"), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) record(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.svc.Record(c.Request.Context(), attendance.MarkInput{
		StudentID:    req.StudentID,
		SectionID:    req.SectionID,
		Date:         req.Date,
		EnrollmentID: req.EnrollmentID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMarkResponse(res))
}

func (s *server) setStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.svc.Mark(c.Request.Context(), attendance.MarkInput{
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		Date:      req.Date,
		Status:    req.Status,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMarkResponse(res))
}

func toMarkResponse(res attendance.MarkResult) markResponse {
	return markResponse{
		RecordID:             res.Record.ID,
		Status:               res.Record.Status,
		AttendancePercentage: res.Percentage,
		UpdatedAt:            res.Record.UpdatedAt,
	}
}

func (s *server) issueToken(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Role {
	case "":
		req.Role = auth.RoleInstructor
	case auth.RoleInstructor, auth.RoleScanner:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be instructor or scanner"})
		return
	}

	tok, err := auth.Issue(req.Subject, req.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL)
	if err != nil {
		s.log.Error("token issue failed", "subject", req.Subject, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

func (s *server) importRoster(c *gin.Context) {
	var req struct {
		Section  attendance.Section   `json:"section"`
		Students []attendance.Student `json:"students"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := s.svc.ImportRoster(c.Request.Context(), req.Section, req.Students)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": rows})
}

// fail maps service errors onto status codes.
func (s *server) fail(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotEnrolled):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
