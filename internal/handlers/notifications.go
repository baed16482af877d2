package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data interface{}) (*notification.Notification, error)
}

// Inbox reads a user's notifications
type Inbox interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]notification.Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID uuid.UUID) error
	WaitForNotification(ctx context.Context, userID uuid.UUID, timeout time.Duration) (*notification.Notification, error)
}

// Long-poll bounds for Wait
const (
	defaultWait = 25 * time.Second
	maxWait     = 60 * time.Second
)

// NotificationHandler serves the caller's inbox
type NotificationHandler struct {
	inbox  Inbox
	logger *slog.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(inbox Inbox, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, logger: logger}
}

// List returns the caller's newest notifications
func (h *NotificationHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = v
	}

	uid, _ := middleware.GetUserID(c)
	items, err := h.inbox.List(c.Request.Context(), uid, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

// MarkRead flags one notification as read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	uid, _ := middleware.GetUserID(c)
	if err := h.inbox.MarkAsRead(c.Request.Context(), uid, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Wait long-polls for the caller's next notification. It answers 204 when
// nothing arrives within ?timeout (a Go duration or whole seconds).
func (h *NotificationHandler) Wait(c *gin.Context) {
	timeout, err := waitTimeout(c.Query("timeout"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	uid, _ := middleware.GetUserID(c)
	n, err := h.inbox.WaitForNotification(c.Request.Context(), uid, timeout)
	switch {
	case errors.Is(err, notification.ErrTimeout), errors.Is(err, context.Canceled):
		c.Status(http.StatusNoContent)
	case err != nil:
		respondError(c, h.logger, err)
	default:
		c.JSON(http.StatusOK, n)
	}
}

func waitTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultWait, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, errors.New("timeout must be a duration or a number of seconds")
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, errors.New("timeout must be positive")
	}
	if d > maxWait {
		d = maxWait
	}
	return d, nil
}
