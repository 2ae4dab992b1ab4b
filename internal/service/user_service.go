package service

import (
	"context"
	"errors"

	"warbler/internal/models"
	"warbler/internal/repository"
)

type UserService struct {
	userRepo    repository.UserRepository
	follows     *FollowService
	messageRepo repository.MessageRepository
	auth        *AuthService
	pageSize    int
}

// UpdateProfileInput carries the edit-profile form. Password re-authenticates
// the request and is never written.
type UpdateProfileInput struct {
	UserID         uint
	Username       string
	Email          string
	ImageURL       string
	HeaderImageURL string
	Bio            string
	Location       string
	Password       string
}

// Profile is everything the profile page shows about one user.
type Profile struct {
	User         *models.User     `json:"user"`
	Messages     []models.Message `json:"messages"`
	Stats        models.UserStats `json:"stats"`
	IsFollowing  bool             `json:"is_following"`
	IsFollowedBy bool             `json:"is_followed_by"`
}

func NewUserService(
	userRepo repository.UserRepository,
	follows *FollowService,
	messageRepo repository.MessageRepository,
	auth *AuthService,
	pageSize int,
) *UserService {
	return &UserService{
		userRepo:    userRepo,
		follows:     follows,
		messageRepo: messageRepo,
		auth:        auth,
		pageSize:    pageSize,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// ListUsers returns all users, or those whose username contains query.
func (s *UserService) ListUsers(ctx context.Context, query string, limit, offset int) ([]models.User, error) {
	if query == "" {
		return s.userRepo.List(ctx, limit, offset)
	}
	return s.userRepo.Search(ctx, query, limit, offset)
}

// GetProfile loads a user's profile as seen by viewerID.
func (s *UserService) GetProfile(ctx context.Context, userID, viewerID uint) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.ListByUser(ctx, userID, viewerID, s.pageSize)
	if err != nil {
		return nil, err
	}
	stats, err := s.userRepo.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{User: user, Messages: messages, Stats: *stats}
	if viewerID != 0 && viewerID != userID {
		if profile.IsFollowing, err = s.follows.IsFollowing(ctx, viewerID, userID); err != nil {
			return nil, err
		}
		if profile.IsFollowedBy, err = s.follows.IsFollowedBy(ctx, viewerID, userID); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// UpdateProfile re-authenticates the user with in.Password, then saves the
// editable fields. Empty image fields fall back to the site defaults.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if err := s.auth.VerifyPassword(ctx, in.UserID, in.Password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, models.NewUnauthorizedError("Unauthorized.")
		}
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	user.Username = in.Username
	user.Email = in.Email
	user.ImageURL = in.ImageURL
	user.HeaderImageURL = in.HeaderImageURL
	user.Bio = in.Bio
	user.Location = in.Location
	user.ApplyImageDefaults()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes the user and everything that references it.
func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	return s.userRepo.Delete(ctx, id)
}
