package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/apperr"
	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/evidence"
	"qrattend/internal/justification"
	"qrattend/internal/notify"
)

// Handler serves the /v1 API on top of the domain services.
type Handler struct {
	att      *attendance.Service
	justs    *justification.Service
	notes    *notify.Service
	evidence evidence.Store
}

// New builds a Handler. A nil files store falls back to stub evidence paths.
func New(att *attendance.Service, justs *justification.Service, notes *notify.Service, files evidence.Store) *Handler {
	if files == nil {
		files = evidence.StubStore{}
	}
	return &Handler{att: att, justs: justs, notes: notes, evidence: files}
}

// Register mounts the /v1 API on r. submitLimit, when non-nil, runs before
// attendance submission only.
func (h *Handler) Register(r gin.IRouter, signer *auth.Signer, submitLimit gin.HandlerFunc) {
	v1 := r.Group("/v1", auth.Authenticate(signer))

	submit := []gin.HandlerFunc{auth.RequireRole(auth.RoleStudent)}
	if submitLimit != nil {
		submit = append([]gin.HandlerFunc{submitLimit}, submit...)
	}
	v1.POST("/attendance", append(submit, h.SubmitAttendance)...)
	v1.GET("/attendance", h.AttendanceHistory)

	staff := auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin)
	v1.GET("/sessions", h.ListSessions)
	v1.POST("/sessions/:id/codes", staff, h.IssueCode)
	v1.GET("/codes", staff, h.ListCodes)

	v1.POST("/justifications", auth.RequireRole(auth.RoleStudent), h.FileJustification)
	v1.GET("/justifications", h.ListJustifications)
	v1.GET("/justifications/:id", h.GetJustification)
	v1.POST("/justifications/:id/review", staff, h.ReviewJustification)

	v1.GET("/notifications", h.ListNotifications)
	v1.POST("/notifications/:id/read", h.MarkNotificationRead)

	admin := v1.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/modules", h.CreateModule)
	admin.POST("/sessions", h.CreateSession)
	admin.POST("/absences", h.RecordAbsences)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.Validation, apperr.Expired:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error", "code"}. Storage causes are logged,
// never returned.
func writeError(c *gin.Context, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.Storage {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(statusFor(e.Kind), gin.H{"error": e.Message, "code": e.Code})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, apperr.Validationf("%s", msg))
}

var errForbidden = apperr.New(apperr.Forbidden, "forbidden", "not allowed to act for another user")

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.FromContext(c)
	return p
}

// selfOr resolves the user an endpoint acts on: the caller by default, and
// only the caller unless the role may act for others.
func selfOr(c *gin.Context, requested string, othersAllowed bool) (string, bool) {
	p := principal(c)
	if requested == "" {
		return p.ID, true
	}
	if requested != p.ID && !othersAllowed {
		writeError(c, errForbidden)
		return "", false
	}
	return requested, true
}
