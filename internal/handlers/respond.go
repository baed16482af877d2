package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/services/auth"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/aluoptimize/aluoptimize/internal/services/prediction"
	"github.com/aluoptimize/aluoptimize/internal/services/reports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotApproved), errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, prediction.ErrNotFound),
		errors.Is(err, repository.ErrNotFound), errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, prediction.ErrWrongStatus), errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, prediction.ErrInvalid),
		errors.Is(err, reports.ErrUnknownType), errors.Is(err, reports.ErrBadKey):
		return http.StatusBadRequest
	case errors.Is(err, reports.ErrNoArchive):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}. Internal errors are logged and
// replaced with a generic message.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// paramID parses the :id path parameter
func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// pageFromQuery reads limit and offset; the repository applies defaults and caps
func pageFromQuery(c *gin.Context) (repository.Page, bool) {
	var page repository.Page
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, name+" must be a non-negative integer")
			return page, false
		}
		*dst = v
	}
	return page, true
}

func actorOf(c *gin.Context) prediction.Actor {
	uid, _ := middleware.GetUserID(c)
	return prediction.Actor{UserID: uid, Staff: middleware.IsStaff(c)}
}
