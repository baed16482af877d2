package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotApproved        = errors.New("account not approved by admin yet")
	ErrUserExists         = errors.New("username or email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrInvalidInput       = errors.New("invalid input")
)

const minPasswordLength = 8

// UserStore is the persistence the service needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, f repository.UserFilter) ([]models.User, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	SetActive(ctx context.Context, userID uuid.UUID, active bool) error
	ActivateMany(ctx context.Context, ids []uuid.UUID) (int64, error)
	SetPassword(ctx context.Context, userID uuid.UUID, hash string) error
}

// NewUser is the input for registration and staff-created accounts
type NewUser struct {
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Role      models.Role `json:"role"`
}

// Service manages accounts, logins and approvals
type Service struct {
	users  UserStore
	tokens *Tokens
	logger *slog.Logger
	cost   int
}

// NewService creates a new account service
func NewService(users UserStore, tokens *Tokens, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: logger.With("component", "auth"),
		cost:   bcrypt.DefaultCost,
	}
}

// Register creates an inactive user that staff must approve
func (s *Service) Register(ctx context.Context, in NewUser) (*models.User, error) {
	in.Role = models.RoleUser
	user, err := s.create(ctx, in, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// CreateUser lets staff add an active account. Staff may only create plain
// users; admins may create any role.
func (s *Service) CreateUser(ctx context.Context, actor *Claims, in NewUser) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if actor.Role != models.RoleAdmin && in.Role != models.RoleUser {
		return nil, ErrForbidden
	}
	user, err := s.create(ctx, in, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "role", user.Role, "by", actor.UserID)
	return user, nil
}

func (s *Service) create(ctx context.Context, in NewUser, active bool) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		IsActive:     active,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Login checks credentials and issues tokens. Inactive accounts are refused
// with ErrNotApproved only after the password matches.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, TokenPair{}, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, TokenPair{}, ErrNotApproved
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new access token. The user is
// reloaded so deactivation and role changes take effect.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Parse(refreshToken, RefreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsActive {
		return "", ErrInvalidToken
	}
	access, _, err := s.tokens.IssueAccess(user)
	return access, err
}

// IsActive reports whether the account still exists and is approved. Access
// tokens outlive deactivation, so the request path checks this per call.
func (s *Service) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil && user.IsActive, nil
}

// Me returns the caller's account
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ChangePassword replaces the caller's password after checking the old one
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, userID, hash)
}

// ListUsers lists accounts visible to actor. Staff only see plain users.
// status is "", "pending" or "active".
func (s *Service) ListUsers(ctx context.Context, actor *Claims, status string, page repository.Page) ([]models.User, error) {
	f := repository.UserFilter{Page: page}
	switch status {
	case "":
	case "pending":
		active := false
		f.Active = &active
	case "active":
		active := true
		f.Active = &active
	default:
		return nil, fmt.Errorf("%w: status must be pending or active", ErrInvalidInput)
	}
	if actor.Role != models.RoleAdmin {
		f.Roles = []models.Role{models.RoleUser}
	}
	return s.users.List(ctx, f)
}

// SetActive approves or deactivates an account
func (s *Service) SetActive(ctx context.Context, actor *Claims, userID uuid.UUID, active bool) (*models.User, error) {
	target, err := s.manageable(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return nil, err
	}
	target.IsActive = active
	s.logger.Info("user activation changed", "user_id", userID, "active", active, "by", actor.UserID)
	return target, nil
}

// ApproveMany activates every listed pending account and returns how many changed
func (s *Service) ApproveMany(ctx context.Context, actor *Claims, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: user_ids is required", ErrInvalidInput)
	}
	if actor.Role != models.RoleAdmin {
		for _, id := range ids {
			if _, err := s.manageable(ctx, actor, id); err != nil {
				return 0, err
			}
		}
	}
	n, err := s.users.ActivateMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("users approved", "count", n, "by", actor.UserID)
	return n, nil
}

// SetPassword lets staff reset another account's password
func (s *Service) SetPassword(ctx context.Context, actor *Claims, userID uuid.UUID, password string) error {
	if _, err := s.manageable(ctx, actor, userID); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, userID, hash)
}

// manageable loads a user and checks actor may change it
func (s *Service) manageable(ctx context.Context, actor *Claims, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if actor.Role != models.RoleAdmin && user.Role != models.RoleUser {
		return nil, ErrForbidden
	}
	return user, nil
}
