package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wa-platform/core/domain/conversation"
)

type messageModel struct {
	ID                string         `gorm:"primaryKey;column:id"`
	TenantID          string         `gorm:"column:tenant_id;not null;index;uniqueIndex:idx_msg_tenant_provider"`
	ConversationID    string         `gorm:"column:conversation_id;not null;index"`
	Direction         string         `gorm:"column:direction;not null"`
	Type              string         `gorm:"column:type;not null"`
	Body              string         `gorm:"column:body"`
	Caption           string         `gorm:"column:caption"`
	MediaURL          string         `gorm:"column:media_url"`
	MediaID           string         `gorm:"column:media_id"`
	MediaMime         string         `gorm:"column:media_mime"`
	MediaSize         int64          `gorm:"column:media_size"`
	FileName          string         `gorm:"column:file_name"`
	Status            string         `gorm:"column:status;not null"`
	FailReason        string         `gorm:"column:fail_reason"`
	// ProviderMessageID is nullable so that many outbound messages without
	// one yet don't collide under the (tenant, provider id) unique index.
	ProviderMessageID sql.NullString `gorm:"column:provider_message_id;uniqueIndex:idx_msg_tenant_provider"`
	Read              bool           `gorm:"column:read;default:false"`
	Timestamp         time.Time      `gorm:"column:timestamp;not null;index"`
}

func (messageModel) TableName() string { return "messages" }

// MessageRepository implements conversation.MessageRepository.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

func (r *MessageRepository) Create(ctx context.Context, msg *conversation.Message) (*conversation.Message, error) {
	if msg.ProviderMessageID != "" {
		var existing messageModel
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND provider_message_id = ?", msg.TenantID, msg.ProviderMessageID).
			First(&existing).Error
		if err == nil {
			out := fromMessageModel(existing)
			return &out, conversation.ErrDuplicate
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	m := toMessageModel(*msg)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	out := fromMessageModel(m)
	return &out, nil
}

func (r *MessageRepository) GetByProviderID(ctx context.Context, tenantID, providerMessageID string) (*conversation.Message, error) {
	var m messageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := fromMessageModel(m)
	return &out, nil
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, tenantID, providerMessageID string, to conversation.MessageStatus, failReason string) (bool, error) {
	var m messageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}

	if !conversation.AdvancesTo(conversation.MessageStatus(m.Status), to) {
		return false, nil
	}

	updates := map[string]any{"status": string(to)}
	if to == conversation.StatusFailed {
		updates["fail_reason"] = failReason
	}
	if err := r.db.WithContext(ctx).Model(&m).Updates(updates).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, tenantID, conversationID string, ids []string) error {
	q := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	return q.Update("read", true).Error
}

func (r *MessageRepository) ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]*conversation.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []messageModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*conversation.Message, len(models))
	for i, m := range models {
		msg := fromMessageModel(m)
		out[i] = &msg
	}
	return out, nil
}

func toMessageModel(msg conversation.Message) messageModel {
	return messageModel{
		ID:                msg.ID,
		TenantID:          msg.TenantID,
		ConversationID:    msg.ConversationID,
		Direction:         string(msg.Direction),
		Type:              string(msg.Type),
		Body:              msg.Body,
		Caption:           msg.Caption,
		MediaURL:          msg.MediaURL,
		MediaID:           msg.MediaID,
		MediaMime:         msg.MediaMime,
		MediaSize:         msg.MediaSize,
		FileName:          msg.FileName,
		Status:            string(msg.Status),
		ProviderMessageID: sql.NullString{String: msg.ProviderMessageID, Valid: msg.ProviderMessageID != ""},
		Timestamp:         msg.Timestamp,
	}
}

func fromMessageModel(m messageModel) conversation.Message {
	return conversation.Message{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ConversationID:    m.ConversationID,
		Direction:         conversation.Direction(m.Direction),
		Type:              conversation.MessageType(m.Type),
		Body:              m.Body,
		Caption:           m.Caption,
		MediaURL:          m.MediaURL,
		MediaID:           m.MediaID,
		MediaMime:         m.MediaMime,
		MediaSize:         m.MediaSize,
		FileName:          m.FileName,
		Status:            conversation.MessageStatus(m.Status),
		ProviderMessageID: m.ProviderMessageID.String,
		Timestamp:         m.Timestamp,
	}
}
