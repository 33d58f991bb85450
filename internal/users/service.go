// Package users manages operator accounts for the coordinator API.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store is the persistence contract for operator accounts.
type Store interface {
	Create(ctx context.Context, user User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a new operator account.
func (s *Service) Create(ctx context.Context, username, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return &user, nil
}

// VerifyCredentials checks a username/password pair and returns the
// account on success.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*User, error) {
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
