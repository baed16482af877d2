package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/services/auth"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/aluoptimize/aluoptimize/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Accounts is the account service used by AuthHandler
type Accounts interface {
	Register(ctx context.Context, in auth.NewUser) (*models.User, error)
	CreateUser(ctx context.Context, actor *auth.Claims, in auth.NewUser) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	ListUsers(ctx context.Context, actor *auth.Claims, status string, page repository.Page) ([]models.User, error)
	SetActive(ctx context.Context, actor *auth.Claims, userID uuid.UUID, active bool) (*models.User, error)
	ApproveMany(ctx context.Context, actor *auth.Claims, ids []uuid.UUID) (int64, error)
	SetPassword(ctx context.Context, actor *auth.Claims, userID uuid.UUID, password string) error
}

// AuthHandler handles registration, login and account management
type AuthHandler struct {
	accounts  Accounts
	notifier  Notifier
	publisher events.Publisher
	logger    *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts Accounts, notifier Notifier, publisher events.Publisher, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, notifier: notifier, publisher: publisher, logger: logger}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type setPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

type bulkApproveRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required"`
}

// Register creates an account awaiting approval
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if e, err := events.New(events.TypeUserRegistered, user.ID, user.ID, user); err == nil {
		if err := h.publisher.Publish(c.Request.Context(), e); err != nil {
			h.logger.Warn("failed to publish event", "type", e.Type, "error", err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    user,
		"message": "Registration successful. Your account is awaiting approval.",
	})
}

// Login exchanges credentials for a token pair
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	user, tokens, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access":     tokens.Access,
		"refresh":    tokens.Refresh,
		"expires_at": tokens.ExpiresAt,
		"user":       user,
	})
}

// Refresh issues a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh token is required")
		return
	}

	access, err := h.accounts.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

// Me returns the caller's account
func (h *AuthHandler) Me(c *gin.Context) {
	uid, _ := middleware.GetUserID(c)
	user, err := h.accounts.Me(c.Request.Context(), uid)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ChangePassword replaces the caller's password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "old_password and new_password are required")
		return
	}

	uid, _ := middleware.GetUserID(c)
	if err := h.accounts.ChangePassword(c.Request.Context(), uid, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers lists accounts the caller may manage
func (h *AuthHandler) ListUsers(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	users, err := h.accounts.ListUsers(c.Request.Context(), middleware.GetClaims(c), c.Query("status"), page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// CreateUser adds an active account
func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req auth.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.accounts.CreateUser(c.Request.Context(), middleware.GetClaims(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Approve activates an account and tells its owner
func (h *AuthHandler) Approve(c *gin.Context) {
	h.setActive(c, true)
}

// Reject deactivates an account
func (h *AuthHandler) Reject(c *gin.Context) {
	h.setActive(c, false)
}

func (h *AuthHandler) setActive(c *gin.Context, active bool) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	user, err := h.accounts.SetActive(c.Request.Context(), middleware.GetClaims(c), id, active)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if active {
		h.notifyApproved(c.Request.Context(), user.ID)
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) notifyApproved(ctx context.Context, userID uuid.UUID) {
	_, err := h.notifier.Notify(ctx, userID, notification.TypeAccountApproved, "Account approved",
		"Your account has been approved. You can now log in.", nil)
	if err != nil {
		h.logger.Warn("failed to notify approved user", "user_id", userID, "error", err)
	}
}

// BulkApprove activates several accounts at once
func (h *AuthHandler) BulkApprove(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_ids must be a list of ids")
		return
	}

	n, err := h.accounts.ApproveMany(c.Request.Context(), middleware.GetClaims(c), req.UserIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	for _, id := range req.UserIDs {
		h.notifyApproved(c.Request.Context(), id)
	}
	c.JSON(http.StatusOK, gin.H{"approved": n})
}

// SetPassword resets another account's password
func (h *AuthHandler) SetPassword(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password is required")
		return
	}

	if err := h.accounts.SetPassword(c.Request.Context(), middleware.GetClaims(c), id, req.Password); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
