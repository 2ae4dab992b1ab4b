package service

import (
	"context"

	"warbler/internal/models"
	"warbler/internal/notifications"
	"warbler/internal/repository"
	"warbler/internal/validation"
)

// ErrSelfLike is the message shown when a user likes their own message.
const ErrSelfLike = "You can't like your own posts!"

// MessageService provides message, like and feed business logic.
type MessageService struct {
	messageRepo repository.MessageRepository
	likeRepo    repository.LikeRepository
	userRepo    repository.UserRepository
	events      EventPublisher
	feedLimit   int
}

// NewMessageService returns a new MessageService. events may be nil.
func NewMessageService(
	messageRepo repository.MessageRepository,
	likeRepo repository.LikeRepository,
	userRepo repository.UserRepository,
	events EventPublisher,
	feedLimit int,
) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		likeRepo:    likeRepo,
		userRepo:    userRepo,
		events:      events,
		feedLimit:   feedLimit,
	}
}

// CreateMessage stores text as a new message by userID.
func (s *MessageService) CreateMessage(ctx context.Context, userID uint, text string) (*models.Message, error) {
	if err := validation.ValidateMessageText(text); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	message := &models.Message{UserID: userID, Text: text}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	emit(ctx, s.events, notifications.Event{
		Kind:      notifications.KindMessageCreated,
		ActorID:   userID,
		MessageID: message.ID,
	})
	return message, nil
}

// GetMessage loads a message with its like count and viewerID's liked flag.
func (s *MessageService) GetMessage(ctx context.Context, id, viewerID uint) (*models.Message, error) {
	return s.messageRepo.GetByID(ctx, id, viewerID)
}

// DeleteMessage removes a message owned by userID together with its likes.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, id uint) error {
	message, err := s.messageRepo.GetByID(ctx, id, 0)
	if err != nil {
		return err
	}
	if message.UserID != userID {
		return models.NewUnauthorizedError("Access unauthorized.")
	}
	return s.messageRepo.Delete(ctx, id)
}

// Like records userID's like of messageID. Liking your own message is
// rejected and liking twice is a no-op.
func (s *MessageService) Like(ctx context.Context, userID, messageID uint) error {
	message, err := s.messageRepo.GetByID(ctx, messageID, 0)
	if err != nil {
		return err
	}
	if message.UserID == userID {
		return models.NewValidationError(ErrSelfLike)
	}
	if err := s.likeRepo.Like(ctx, userID, messageID); err != nil {
		return err
	}

	emit(ctx, s.events, notifications.Event{
		Kind:      notifications.KindMessageLiked,
		ActorID:   userID,
		UserID:    message.UserID,
		MessageID: messageID,
	})
	return nil
}

// Unlike removes userID's like and reports whether one existed.
func (s *MessageService) Unlike(ctx context.Context, userID, messageID uint) (bool, error) {
	if _, err := s.messageRepo.GetByID(ctx, messageID, 0); err != nil {
		return false, err
	}
	return s.likeRepo.Unlike(ctx, userID, messageID)
}

// Feed returns the home timeline for userID: their own messages and those of
// everyone they follow, newest first, capped at the configured feed limit.
func (s *MessageService) Feed(ctx context.Context, userID uint) ([]models.Message, error) {
	return s.messageRepo.Feed(ctx, userID, s.feedLimit)
}

// LikedMessages returns the user and the messages they liked, most recent like first.
func (s *MessageService) LikedMessages(ctx context.Context, userID, viewerID uint) (*models.User, []models.Message, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.messageRepo.LikedBy(ctx, userID, viewerID)
	if err != nil {
		return nil, nil, err
	}
	return user, messages, nil
}

// LikedIDs returns which of messages viewerID has liked, as a set.
func (s *MessageService) LikedIDs(ctx context.Context, viewerID uint, messages []models.Message) (map[uint]bool, error) {
	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	liked, err := s.likeRepo.LikedMessageIDs(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	return set, nil
}
