// Package users is the identity store. The engines only need existence
// checks and profile reads; registration and login live at the HTTP
// boundary.
package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/models"

	"go.uber.org/zap"
)

type Store struct {
	sugar *zap.SugaredLogger
	db    *sql.DB
}

func NewStore(sugar *zap.SugaredLogger, db *sql.DB) *Store {
	return &Store{sugar: sugar, db: db}
}

func (s *Store) Create(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO users (id, email, username, display_name, bio, avatar, password, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.UserName, user.DisplayName, user.Bio, user.Avatar, user.Password, user.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("email or username already taken")
		}
		return apperrors.Unavailable("creating user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, "SELECT id, email, username, display_name, bio, avatar, created_at FROM users WHERE id = ?", userID).
		Scan(&user.ID, &user.Email, &user.UserName, &user.DisplayName, &user.Bio, &user.Avatar, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperrors.NotFound("user %d not found", userID)
		}
		return models.User{}, apperrors.Unavailable("fetching user", err)
	}
	return user, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, "SELECT id, email, username, display_name, bio, avatar, password, created_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &user.UserName, &user.DisplayName, &user.Bio, &user.Avatar, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperrors.NotFound("no user with that email")
		}
		return models.User{}, apperrors.Unavailable("fetching user", err)
	}
	return user, nil
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userID).Scan(&exists)
	if err != nil {
		return false, apperrors.Unavailable("checking user", err)
	}
	return exists, nil
}

// UpdateProfile changes the mutable profile fields. Identity fields (id,
// username, email) stay immutable after registration.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, displayName *string, bio *string, avatar *string) error {
	if displayName == nil && bio == nil && avatar == nil {
		return apperrors.InvalidArgument("no profile changes given")
	}

	if displayName != nil {
		if *displayName == "" {
			return apperrors.InvalidArgument("display name can't be empty")
		}
		if _, err := s.db.ExecContext(ctx, "UPDATE users SET display_name = ? WHERE id = ?", *displayName, userID); err != nil {
			return apperrors.Unavailable("updating display name", err)
		}
	}
	if bio != nil {
		if _, err := s.db.ExecContext(ctx, "UPDATE users SET bio = ? WHERE id = ?", *bio, userID); err != nil {
			return apperrors.Unavailable("updating bio", err)
		}
	}
	if avatar != nil {
		if _, err := s.db.ExecContext(ctx, "UPDATE users SET avatar = ? WHERE id = ?", *avatar, userID); err != nil {
			return apperrors.Unavailable("updating avatar", err)
		}
	}
	return nil
}

// NewUser fills the immutable identity fields for registration.
func NewUser(id int64, email string, username string, passwordHash []byte) models.User {
	return models.User{
		ID:          id,
		Email:       email,
		UserName:    username,
		DisplayName: username,
		Password:    passwordHash,
		CreatedAt:   time.Now().UTC(),
	}
}
