package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) AddMessage(ctx context.Context, message *models.Message) error {
	if message.MessageSent.IsZero() {
		message.MessageSent = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repositories.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return &message, nil
}

func (r *MessageRepository) GetThread(ctx context.Context, username, other string) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("(recipient_username = ? AND sender_username = ? AND recipient_deleted = ?) OR (recipient_username = ? AND sender_username = ? AND sender_deleted = ?)",
			username, other, false, other, username, false).
		Order("message_sent DESC").
		Order("id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s/%s: %w", username, other, err)
	}
	return messages, nil
}

func (r *MessageRepository) MarkThreadRead(ctx context.Context, username, other string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("recipient_username = ? AND sender_username = ? AND date_read IS NULL", username, other).
		Update("date_read", at)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark thread %s/%s read: %w", username, other, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteMessage flags only username's side of the row and then removes the
// row if both sides are flagged, so concurrent deletes by the two parties
// cannot overwrite each other's flag.
func (r *MessageRepository) DeleteMessage(ctx context.Context, message *models.Message, username string) error {
	if !message.IsParticipant(username) {
		return repositories.ErrNotParticipant
	}

	flags := map[string]interface{}{}
	if message.SenderUsername == username {
		flags["sender_deleted"] = true
	}
	if message.RecipientUsername == username {
		flags["recipient_deleted"] = true
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).Where("id = ?", message.ID).Updates(flags)
		if result.Error != nil {
			return fmt.Errorf("failed to soft delete message %d: %w", message.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			// MySQL reports 0 for a row whose flag was already set.
			var count int64
			if err := tx.Model(&models.Message{}).Where("id = ?", message.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check message %d: %w", message.ID, err)
			}
			if count == 0 {
				return repositories.ErrMessageNotFound
			}
		}

		result = tx.Where("id = ? AND sender_deleted = ? AND recipient_deleted = ?", message.ID, true, true).
			Delete(&models.Message{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete message %d: %w", message.ID, result.Error)
		}

		message.MarkDeletedBy(username)
		if result.RowsAffected > 0 {
			message.SenderDeleted, message.RecipientDeleted = true, true
		}
		return nil
	})
}
