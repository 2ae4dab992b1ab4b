package service

import (
	"context"

	"warbler/internal/models"
	"warbler/internal/notifications"
	"warbler/internal/repository"
)

// FollowService provides follow and unfollow business logic.
type FollowService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	events     EventPublisher
}

// NewFollowService returns a new FollowService. events may be nil.
func NewFollowService(followRepo repository.FollowRepository, userRepo repository.UserRepository, events EventPublisher) *FollowService {
	return &FollowService{
		followRepo: followRepo,
		userRepo:   userRepo,
		events:     events,
	}
}

// Follow makes followerID follow targetID. Following twice is a no-op.
func (s *FollowService) Follow(ctx context.Context, followerID, targetID uint) error {
	if followerID == targetID {
		return models.NewValidationError("You can't follow yourself!")
	}
	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.followRepo.Follow(ctx, followerID, targetID); err != nil {
		return err
	}

	emit(ctx, s.events, notifications.Event{
		Kind:    notifications.KindUserFollowed,
		ActorID: followerID,
		UserID:  targetID,
	})
	return nil
}

// Unfollow removes the edge and reports whether one existed.
func (s *FollowService) Unfollow(ctx context.Context, followerID, targetID uint) (bool, error) {
	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return false, err
	}
	return s.followRepo.Unfollow(ctx, followerID, targetID)
}

// IsFollowing reports whether followerID follows targetID.
func (s *FollowService) IsFollowing(ctx context.Context, followerID, targetID uint) (bool, error) {
	return s.followRepo.IsFollowing(ctx, followerID, targetID)
}

// IsFollowedBy reports whether userID is followed by otherID.
func (s *FollowService) IsFollowedBy(ctx context.Context, userID, otherID uint) (bool, error) {
	return s.followRepo.IsFollowing(ctx, otherID, userID)
}

// Following returns the user and the users they follow.
func (s *FollowService) Following(ctx context.Context, userID uint) (*models.User, []models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.followRepo.Following(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, users, nil
}

// Followers returns the user and the users following them.
func (s *FollowService) Followers(ctx context.Context, userID uint) (*models.User, []models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.followRepo.Followers(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, users, nil
}
