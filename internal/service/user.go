package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// UserService manages rider accounts.
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Register registers a rider, or returns the existing account when the
// email is already taken. The second return value reports whether the
// rider already existed.
func (s *UserService) Register(ctx context.Context, name, email string) (*domain.User, bool, error) {
	if name == "" || email == "" {
		return nil, false, ErrInvalidRiderID
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	user := &domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// Get retrieves a rider by ID.
func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrInvalidRiderID
	}
	return s.userRepo.GetByID(ctx, userID)
}
