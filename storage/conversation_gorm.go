package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wa-platform/core/domain/conversation"
)

type conversationModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	TenantID    string    `gorm:"column:tenant_id;not null;index"`
	ContactID   string    `gorm:"column:contact_id;not null;uniqueIndex:idx_conv_tenant_contact"`
	Status      string    `gorm:"column:status;not null;default:'open'"`
	AssignedTo  string    `gorm:"column:assigned_to"`
	LastMessage string    `gorm:"column:last_message"`
	LastAt      time.Time `gorm:"column:last_at"`
	Unread      int       `gorm:"column:unread;default:0"`
	BroadcastID string    `gorm:"column:broadcast_id"`
}

func (conversationModel) TableName() string { return "conversations" }

// ConversationRepository implements conversation.ConversationRepository.
// TouchIncoming/TouchOutgoing/MarkRead are serialized per-conversation by
// the caller (§5); here they're plain row updates.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&conversationModel{})
}

func (r *ConversationRepository) GetOrOpen(ctx context.Context, tenantID, contactID string) (*conversation.Conversation, error) {
	var m conversationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND contact_id = ?", tenantID, contactID).
		First(&m).Error
	if err == nil {
		c := fromConversationModel(m)
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	m = conversationModel{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ContactID: contactID,
		Status:    string(conversation.StatusOpen),
		LastAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		var existing conversationModel
		if lookupErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND contact_id = ?", tenantID, contactID).
			First(&existing).Error; lookupErr == nil {
			c := fromConversationModel(existing)
			return &c, nil
		}
		return nil, err
	}
	c := fromConversationModel(m)
	return &c, nil
}

func (r *ConversationRepository) Get(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	var m conversationModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := fromConversationModel(m)
	return &c, nil
}

func (r *ConversationRepository) List(ctx context.Context, tenantID string) ([]*conversation.Conversation, error) {
	var models []conversationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("last_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*conversation.Conversation, len(models))
	for i, m := range models {
		c := fromConversationModel(m)
		out[i] = &c
	}
	return out, nil
}

func (r *ConversationRepository) TouchIncoming(ctx context.Context, tenantID, id, preview string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"last_message": preview,
			"last_at":      at,
			"unread":       gorm.Expr("unread + 1"),
		}).Error
}

func (r *ConversationRepository) TouchOutgoing(ctx context.Context, tenantID, id, preview string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"last_message": preview,
			"last_at":      at,
		}).Error
}

// MarkRead zeroes the unread counter. The per-message read flag lives on
// conversation.MessageRepository; this only resets the inbox badge.
func (r *ConversationRepository) MarkRead(ctx context.Context, tenantID, id string, messageIDs []string) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("unread", 0).Error
}

func (r *ConversationRepository) AttributeToBroadcast(ctx context.Context, tenantID, id, broadcastID string) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("tenant_id = ? AND id = ? AND broadcast_id = ''", tenantID, id).
		Update("broadcast_id", broadcastID).Error
}

func (r *ConversationRepository) SetAssignee(ctx context.Context, tenantID, id, agentID string) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("assigned_to", agentID).Error
}

func (r *ConversationRepository) SetStatus(ctx context.Context, tenantID, id string, status conversation.Status) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("status", string(status)).Error
}

func fromConversationModel(m conversationModel) conversation.Conversation {
	return conversation.Conversation{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ContactID:   m.ContactID,
		Status:      conversation.Status(m.Status),
		AssignedTo:  m.AssignedTo,
		LastMessage: m.LastMessage,
		LastAt:      m.LastAt,
		Unread:      m.Unread,
		BroadcastID: m.BroadcastID,
	}
}
