package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

// CreateModule adds a module to the catalogue.
func (h *Handler) CreateModule(c *gin.Context) {
	var m attendance.Module
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	created, err := h.att.CreateModule(c.Request.Context(), m)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// CreateSession adds a weekly timetable slot.
func (h *Handler) CreateSession(c *gin.Context) {
	var s attendance.ScheduledSession
	if err := c.ShouldBindJSON(&s); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	created, err := h.att.CreateSession(c.Request.Context(), s)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type absencesRequest struct {
	SessionID  string   `json:"session_id"`
	Date       string   `json:"date"`
	StudentIDs []string `json:"student_ids"`
}

// RecordAbsences marks students absent for a session on a date.
func (h *Handler) RecordAbsences(c *gin.Context) {
	var req absencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	n, err := h.att.RecordAbsences(c.Request.Context(), req.SessionID, req.Date, req.StudentIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": n})
}
