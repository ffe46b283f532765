package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context(), principal(c).ID, c.Query("unread") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.notes.MarkRead(c.Request.Context(), c.Param("id"), principal(c).ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
