package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api/middleware"
	"greendrake/marketdesk/internal/services"
)

// RestNotificationHandler serves the caller's notification feed.
type RestNotificationHandler struct {
	notifications services.INotificationService
	log           *zap.Logger
}

func NewRestNotificationHandler(notifications services.INotificationService, log *zap.Logger) *RestNotificationHandler {
	return &RestNotificationHandler{notifications: notifications, log: log}
}

// List handles GET /v1/notifications
func (h *RestNotificationHandler) List(c *gin.Context) {
	records, err := h.notifications.ListForUser(c.Request.Context(), middleware.GetIdentity(c), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, h.log, err, "Failed to retrieve notifications")
		return
	}
	c.JSON(http.StatusOK, records)
}

// Dismiss handles PATCH /v1/notifications/:id/dismiss
func (h *RestNotificationHandler) Dismiss(c *gin.Context) {
	id, ok := pathID(c, "id", "notification")
	if !ok {
		return
	}
	if err := h.notifications.Dismiss(c.Request.Context(), id, middleware.GetIdentity(c)); err != nil {
		respondError(c, h.log, err, "Failed to dismiss notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
