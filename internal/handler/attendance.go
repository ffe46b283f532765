package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

type submitRequest struct {
	Code      string `json:"code"`
	StudentID string `json:"student_id"`
}

// SubmitAttendance registers the caller's presence with a scanned code.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	studentID, ok := selfOr(c, req.StudentID, false)
	if !ok {
		return
	}
	out, err := h.att.Submit(c.Request.Context(), req.Code, studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	msg := "attendance registered"
	if out.AlreadyRegistered {
		msg = "attendance already registered for this session today"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":            msg,
		"already_registered": out.AlreadyRegistered,
		"attendance":         out.Record,
		"module":             out.Module,
		"session":            out.Session,
	})
}

// AttendanceHistory lists a student's records. Students see only their own.
func (h *Handler) AttendanceHistory(c *gin.Context) {
	p := principal(c)
	requested := c.Query("student_id")
	if requested == "" && !p.IsStudent() {
		badRequest(c, "student_id is required")
		return
	}
	studentID, ok := selfOr(c, requested, !p.IsStudent())
	if !ok {
		return
	}
	entries, err := h.att.History(c.Request.Context(), studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": entries})
}

type issueRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// IssueCode creates a fresh code for a session the caller teaches.
func (h *Handler) IssueCode(c *gin.Context) {
	var req issueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON body")
			return
		}
	}
	p := principal(c)
	code, err := h.att.Issue(c.Request.Context(), attendance.IssueRequest{
		SessionID: c.Param("id"),
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
		IssuedBy:  p.ID,
		AnyScope:  p.IsAdmin(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

// ListCodes lists codes for a teacher's sessions.
func (h *Handler) ListCodes(c *gin.Context) {
	p := principal(c)
	requested := c.Query("teacher_id")
	if requested == "" && p.IsAdmin() {
		badRequest(c, "teacher_id is required")
		return
	}
	teacherID, ok := selfOr(c, requested, p.IsAdmin())
	if !ok {
		return
	}
	codes, err := h.att.ListCodes(c.Request.Context(), teacherID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

// ListSessions returns the timetable, optionally for one teacher.
func (h *Handler) ListSessions(c *gin.Context) {
	teacherID := c.Query("teacher_id")
	if teacherID == "me" {
		teacherID = principal(c).ID
	}
	sessions, err := h.att.ListSessions(c.Request.Context(), teacherID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
