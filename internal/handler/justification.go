package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/apperr"
	"qrattend/internal/evidence"
	"qrattend/internal/justification"
)

type fileRequest struct {
	StudentID    string `form:"student_id" json:"student_id"`
	AttendanceID string `form:"attendance_id" json:"attendance_id"`
	ModuleID     string `form:"module_id" json:"module_id"`
	AbsenceDate  string `form:"absence_date" json:"absence_date"`
	Date         string `form:"date" json:"date"`
	Reason       string `form:"reason" json:"reason"`
}

// FileJustification contests one of the caller's absences. The absence is
// referenced by attendance_id, or by module_id and absence_date. An optional
// multipart "file" is stored as evidence.
func (h *Handler) FileJustification(c *gin.Context) {
	var req fileRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	studentID, ok := selfOr(c, req.StudentID, false)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	attendanceID, date := req.AttendanceID, req.Date
	if attendanceID == "" {
		if req.ModuleID == "" || req.AbsenceDate == "" {
			badRequest(c, "attendance_id, or module_id and absence_date, are required")
			return
		}
		id, err := h.justs.ResolveAbsence(ctx, studentID, req.ModuleID, req.AbsenceDate)
		if err != nil {
			writeError(c, err)
			return
		}
		attendanceID, date = id, req.AbsenceDate
	}

	filing := justification.FileRequest{
		StudentID:    studentID,
		AttendanceID: attendanceID,
		Date:         date,
		Reason:       req.Reason,
	}
	// Evidence is only stored for a filing that can be accepted.
	if err := h.justs.Check(ctx, filing); err != nil {
		writeError(c, err)
		return
	}
	ref, err := h.saveEvidence(c)
	if err != nil {
		writeError(c, err)
		return
	}
	filing.EvidenceRef = ref

	j, err := h.justs.File(ctx, filing)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (h *Handler) saveEvidence(c *gin.Context) (string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		// no file attached, or not a multipart request
		return "", nil
	}
	if fh.Size > evidence.MaxSize {
		return "", apperr.Validationf("%v", evidence.ErrTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return "", apperr.Validationf("unreadable evidence file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, evidence.MaxSize+1))
	if err != nil {
		return "", apperr.Validationf("unreadable evidence file")
	}
	ref, err := h.evidence.Save(c.Request.Context(), fh.Filename, data)
	if err != nil {
		if errors.Is(err, evidence.ErrTooLarge) {
			return "", apperr.Validationf("%v", err)
		}
		return "", apperr.New(apperr.Storage, "evidence_upload_failed", "evidence upload failed").Wrap(err)
	}
	return ref, nil
}

// ListJustifications returns the caller's view: students their own filings,
// teachers those on their sessions, admins any filter.
func (h *Handler) ListJustifications(c *gin.Context) {
	p := principal(c)
	ctx := c.Request.Context()
	studentID, teacherID := c.Query("student_id"), c.Query("teacher_id")

	var (
		views []justification.View
		err   error
	)
	switch {
	case p.IsStudent():
		id, ok := selfOr(c, studentID, false)
		if !ok {
			return
		}
		views, err = h.justs.ListForStudent(ctx, id)
	case p.IsTeacher():
		id, ok := selfOr(c, teacherID, false)
		if !ok {
			return
		}
		views, err = h.justs.ListForReviewer(ctx, id)
	case studentID != "":
		views, err = h.justs.ListForStudent(ctx, studentID)
	case teacherID != "":
		views, err = h.justs.ListForReviewer(ctx, teacherID)
	default:
		views, err = h.justs.ListAll(ctx, justification.Status(c.Query("status")))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"justifications": views})
}

// GetJustification returns one justification visible to the caller.
func (h *Handler) GetJustification(c *gin.Context) {
	v, err := h.justs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	p := principal(c)
	visible := p.IsAdmin() ||
		(p.IsStudent() && v.StudentID == p.ID) ||
		(p.IsTeacher() && v.TeacherID == p.ID)
	if !visible {
		writeError(c, justification.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, v)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// ReviewJustification approves or rejects a pending justification.
func (h *Handler) ReviewJustification(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	p := principal(c)
	j, err := h.justs.Review(c.Request.Context(), justification.ReviewRequest{
		ID:         c.Param("id"),
		Decision:   justification.Status(req.Decision),
		ReviewerID: p.ID,
		Note:       req.Note,
		AnyScope:   p.IsAdmin(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}
