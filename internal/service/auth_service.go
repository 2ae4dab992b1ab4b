// Package service holds Warbler's business rules on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"

	"warbler/internal/models"
	"warbler/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown username and for a wrong
// password alike, so callers cannot tell the two apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService hashes passwords, creates accounts and checks logins.
type AuthService struct {
	userRepo  repository.UserRepository
	cost      int
	dummyHash []byte
}

// SignupInput carries the fields a new account is created from.
type SignupInput struct {
	Username string
	Email    string
	Password string
	ImageURL string
}

// NewAuthService returns an AuthService hashing with the given bcrypt cost.
func NewAuthService(userRepo repository.UserRepository, cost int) *AuthService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("warbler-timing-equalizer"), cost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt dummy hash: %v", err))
	}
	return &AuthService{userRepo: userRepo, cost: cost, dummyHash: dummy}
}

// Signup stores a new user with a bcrypt hash of the password. A taken
// username or email returns a CONFLICT error and writes nothing.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
		ImageURL: in.ImageURL,
	}
	user.ApplyImageDefaults()

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate returns the user whose username and password match, or
// ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Same bcrypt work as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyPassword re-checks the password of an already identified user.
func (s *AuthService) VerifyPassword(ctx context.Context, userID uint, password string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	// The cached profile carries no hash, so authenticate by username.
	authed, err := s.Authenticate(ctx, user.Username, password)
	if err != nil {
		return err
	}
	if authed.ID != userID {
		return ErrInvalidCredentials
	}
	return nil
}
