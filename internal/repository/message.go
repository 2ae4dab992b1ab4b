package repository

import (
	"context"
	"errors"

	"warbler/internal/models"
	"warbler/internal/observability"

	"gorm.io/gorm"
)

// MessageRepository defines persistence operations for messages and their likes.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint, viewerID uint) (*models.Message, error)
	ListByUser(ctx context.Context, userID uint, viewerID uint, limit int) ([]models.Message, error)
	Feed(ctx context.Context, userID uint, limit int) ([]models.Message, error)
	LikedBy(ctx context.Context, userID uint, viewerID uint) ([]models.Message, error)
	Delete(ctx context.Context, id uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(message).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint, viewerID uint) (*models.Message, error) {
	var message models.Message
	err := r.applyMessageDetails(r.db.WithContext(ctx), viewerID).
		Preload("User").
		Where("messages.id = ?", id).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &message, nil
}

// clampFeedLimit keeps a page within models.MaxFeedSize rows.
func clampFeedLimit(limit int) int {
	if limit <= 0 || limit > models.MaxFeedSize {
		return models.MaxFeedSize
	}
	return limit
}

// ListByUser returns userID's messages, newest first.
func (r *messageRepository) ListByUser(ctx context.Context, userID uint, viewerID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.applyMessageDetails(r.db.WithContext(ctx), viewerID).
		Preload("User").
		Where("messages.user_id = ?", userID).
		Order("messages.timestamp DESC").
		Order("messages.id DESC").
		Limit(clampFeedLimit(limit)).
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// Feed returns the newest messages written by userID or by anyone userID follows.
func (r *messageRepository) Feed(ctx context.Context, userID uint, limit int) ([]models.Message, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "Feed", "messages")
	defer span.End()

	db := r.db.WithContext(ctx)
	followed := db.Model(&models.Follow{}).
		Select("user_being_followed_id").
		Where("user_following_id = ?", userID)

	var messages []models.Message
	err := r.applyMessageDetails(db, userID).
		Preload("User").
		Where("messages.user_id = ? OR messages.user_id IN (?)", userID, followed).
		Order("messages.timestamp DESC").
		Order("messages.id DESC").
		Limit(clampFeedLimit(limit)).
		Find(&messages).Error
	if err != nil {
		span.RecordError(err)
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// LikedBy returns the messages userID has liked, most recently liked first.
func (r *messageRepository) LikedBy(ctx context.Context, userID uint, viewerID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.applyMessageDetails(r.db.WithContext(ctx), viewerID).
		Preload("User").
		Joins("JOIN likes AS user_likes ON user_likes.message_id = messages.id AND user_likes.user_id = ?", userID).
		Order("user_likes.created_at DESC").
		Order("messages.id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// Delete removes the message's likes and then the message in one transaction.
func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Message{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Message", id)
		}
		return nil
	})
	if err != nil {
		if models.ErrorCode(err) != "" {
			return err
		}
		return models.NewInternalError(err)
	}
	return nil
}

// applyMessageDetails selects the like count and the viewer's liked flag alongside each row.
func (r *messageRepository) applyMessageDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "messages.*, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.message_id = messages.id) AS likes_count"

	if viewerID != 0 {
		return db.Model(&models.Message{}).
			Select(selectQuery+", EXISTS(SELECT 1 FROM likes WHERE likes.message_id = messages.id AND likes.user_id = ?) AS liked", viewerID)
	}
	return db.Model(&models.Message{}).Select(selectQuery + ", false AS liked")
}
