package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var userColumns = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name",
	"role", "is_active", "date_joined", "last_login",
}

// UserFilter narrows a user listing. Nil fields do not filter.
type UserFilter struct {
	Active *bool
	Roles  []models.Role
	Page   Page
}

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user whose password hash is already set
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}

	_, err := execBuilt(ctx, r.db, psql.Insert("users").
		Columns(userColumns[:9]...).
		Values(user.ID, user.Username, user.Email, user.PasswordHash, user.FirstName,
			user.LastName, string(user.Role), user.IsActive, user.DateJoined))
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, sq.Eq{"username": username})
}

func (r *UserRepository) getOne(ctx context.Context, where sq.Eq) (*models.User, error) {
	row, err := queryRowBuilt(ctx, r.db, psql.Select(userColumns...).From("users").Where(where))
	if err != nil {
		return nil, err
	}

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// List returns users matching the filter, newest first
func (r *UserRepository) List(ctx context.Context, f UserFilter) ([]models.User, error) {
	rows, err := queryBuilt(ctx, r.db, userListQuery(f))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func userListQuery(f UserFilter) sq.SelectBuilder {
	b := psql.Select(userColumns...).From("users").OrderBy("date_joined DESC")
	if f.Active != nil {
		b = b.Where(sq.Eq{"is_active": *f.Active})
	}
	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, role := range f.Roles {
			roles[i] = string(role)
		}
		b = b.Where(sq.Eq{"role": roles})
	}
	return f.Page.apply(b)
}

// UpdateLastLogin updates the user's last login time
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET last_login = $1 WHERE id = $2",
		time.Now().UTC(), userID,
	)
	return err
}

// SetActive approves (true) or deactivates (false) a user
func (r *UserRepository) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET is_active = $1 WHERE id = $2",
		active, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectRow(res)
}

// ActivateMany approves every listed inactive user and returns the count changed
func (r *UserRepository) ActivateMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET is_active = TRUE WHERE is_active = FALSE AND id = ANY($1::uuid[])",
		pq.Array(keys),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to approve users: %w", err)
	}
	return res.RowsAffected()
}

// SetPassword replaces a user's password hash
func (r *UserRepository) SetPassword(ctx context.Context, userID uuid.UUID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1 WHERE id = $2",
		hash, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return expectRow(res)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*models.User, error) {
	var user models.User
	var role string
	err := s.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &role, &user.IsActive,
		&user.DateJoined, &user.LastLogin)
	if err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	return &user, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
