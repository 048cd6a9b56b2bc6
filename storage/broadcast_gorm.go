package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wa-platform/core/domain/broadcast"
)

type broadcastModel struct {
	ID             string     `gorm:"primaryKey;column:id"`
	TenantID       string     `gorm:"column:tenant_id;not null;index"`
	Name           string     `gorm:"column:name;not null"`
	TemplateJSON   string     `gorm:"column:template;type:text"`
	Status         string     `gorm:"column:status;not null;index"`
	Total          int        `gorm:"column:total;default:0"`
	Sent           int        `gorm:"column:sent;default:0"`
	Delivered      int        `gorm:"column:delivered;default:0"`
	Read           int        `gorm:"column:read;default:0"`
	Failed         int        `gorm:"column:failed;default:0"`
	Reply          int        `gorm:"column:reply;default:0"`
	ChatbotOnReply bool       `gorm:"column:chatbot_on_reply;default:false"`
	ScheduledAt    *time.Time `gorm:"column:scheduled_at;index"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
}

func (broadcastModel) TableName() string { return "broadcasts" }

// broadcastRecipientModel is a separate table (rather than a blob column on
// broadcastModel) so status-webhook reconciliation can look a recipient up
// by provider_message_id without scanning every broadcast's payload.
type broadcastRecipientModel struct {
	ID                string `gorm:"primaryKey;column:id"`
	BroadcastID       string `gorm:"column:broadcast_id;not null;index"`
	TenantID          string `gorm:"column:tenant_id;not null;index"`
	ContactID         string `gorm:"column:contact_id;not null;index"`
	Phone             string `gorm:"column:phone;not null"`
	VariablesJSON     string `gorm:"column:variables;type:text"`
	ProviderMessageID string `gorm:"column:provider_message_id;index"`
	Status            string `gorm:"column:status;not null"`
	FailReason        string `gorm:"column:fail_reason"`
	Replied           bool   `gorm:"column:replied;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

func (broadcastRecipientModel) TableName() string { return "broadcast_recipients" }

// BroadcastRepository implements broadcast.Repository.
type BroadcastRepository struct {
	db *gorm.DB
}

func NewBroadcastRepository(db *gorm.DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

func (r *BroadcastRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&broadcastModel{}, &broadcastRecipientModel{})
}

func (r *BroadcastRepository) Create(ctx context.Context, b *broadcast.Broadcast) (*broadcast.Broadcast, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	m, err := toBroadcastModel(*b)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		recipients := make([]broadcastRecipientModel, 0, len(b.Recipients))
		for _, rec := range b.Recipients {
			rm, err := toRecipientModel(b.TenantID, b.ID, rec)
			if err != nil {
				return err
			}
			recipients = append(recipients, rm)
		}
		if len(recipients) > 0 {
			if err := tx.Create(&recipients).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, b.TenantID, b.ID)
}

func (r *BroadcastRepository) Get(ctx context.Context, tenantID, id string) (*broadcast.Broadcast, error) {
	var m broadcastModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	recipients, err := r.recipientsFor(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return fromBroadcastModel(m, recipients)
}

func (r *BroadcastRepository) List(ctx context.Context, tenantID string) ([]*broadcast.Broadcast, error) {
	var models []broadcastModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*broadcast.Broadcast, 0, len(models))
	for _, m := range models {
		recipients, err := r.recipientsFor(ctx, tenantID, m.ID)
		if err != nil {
			return nil, err
		}
		b, err := fromBroadcastModel(m, recipients)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *BroadcastRepository) recipientsFor(ctx context.Context, tenantID, broadcastID string) ([]broadcastRecipientModel, error) {
	var recipients []broadcastRecipientModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND broadcast_id = ?", tenantID, broadcastID).
		Find(&recipients).Error
	return recipients, err
}

func (r *BroadcastRepository) TransitionStatus(ctx context.Context, tenantID, id string, to broadcast.Status) (bool, error) {
	var m broadcastModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	if broadcast.Status(m.Status).Terminal() {
		return false, nil
	}

	updates := map[string]any{"status": string(to)}
	now := time.Now().UTC()
	switch to {
	case broadcast.StatusProcessing:
		updates["started_at"] = now
	case broadcast.StatusCompleted, broadcast.StatusFailed, broadcast.StatusCancelled:
		updates["completed_at"] = now
	}
	if err := r.db.WithContext(ctx).Model(&m).Updates(updates).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *BroadcastRepository) IncrementCounters(ctx context.Context, tenantID, id string, delta broadcast.Counters) error {
	return r.db.WithContext(ctx).Model(&broadcastModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"sent":      gorm.Expr("sent + ?", delta.Sent),
			"delivered": gorm.Expr("delivered + ?", delta.Delivered),
			"read":      gorm.Expr("\"read\" + ?", delta.Read),
			"failed":    gorm.Expr("failed + ?", delta.Failed),
			"reply":     gorm.Expr("reply + ?", delta.Reply),
		}).Error
}

func (r *BroadcastRepository) DuePending(ctx context.Context, now time.Time) ([]*broadcast.Broadcast, error) {
	var models []broadcastModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(broadcast.StatusScheduled), now).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*broadcast.Broadcast, 0, len(models))
	for _, m := range models {
		recipients, err := r.recipientsFor(ctx, m.TenantID, m.ID)
		if err != nil {
			return nil, err
		}
		b, err := fromBroadcastModel(m, recipients)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *BroadcastRepository) RecordRecipientSent(ctx context.Context, tenantID, broadcastID, contactID, providerMessageID string) error {
	return r.db.WithContext(ctx).Model(&broadcastRecipientModel{}).
		Where("tenant_id = ? AND broadcast_id = ? AND contact_id = ?", tenantID, broadcastID, contactID).
		Updates(map[string]any{
			"provider_message_id": providerMessageID,
			"status":              string(broadcast.RecipientSent),
		}).Error
}

func (r *BroadcastRepository) RecordRecipientFailed(ctx context.Context, tenantID, broadcastID, contactID, reason string) error {
	return r.db.WithContext(ctx).Model(&broadcastRecipientModel{}).
		Where("tenant_id = ? AND broadcast_id = ? AND contact_id = ?", tenantID, broadcastID, contactID).
		Updates(map[string]any{
			"status":      string(broadcast.RecipientFailed),
			"fail_reason": reason,
		}).Error
}

func (r *BroadcastRepository) AdvanceRecipientStatus(ctx context.Context, tenantID, providerMessageID string, to broadcast.RecipientStatus) (string, bool, error) {
	var rm broadcastRecipientModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		First(&rm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if !broadcast.RecipientAdvancesTo(broadcast.RecipientStatus(rm.Status), to) {
		return rm.BroadcastID, false, nil
	}
	if err := r.db.WithContext(ctx).Model(&rm).Update("status", string(to)).Error; err != nil {
		return "", false, err
	}
	return rm.BroadcastID, true, nil
}

func (r *BroadcastRepository) FindUnattributedRecipient(ctx context.Context, tenantID, contactID string) (string, bool, error) {
	var rm broadcastRecipientModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND contact_id = ? AND replied = ?", tenantID, contactID, false).
		Order("created_at DESC").
		First(&rm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rm.BroadcastID, true, nil
}

func (r *BroadcastRepository) MarkRecipientReplied(ctx context.Context, tenantID, broadcastID, contactID string) error {
	return r.db.WithContext(ctx).Model(&broadcastRecipientModel{}).
		Where("tenant_id = ? AND broadcast_id = ? AND contact_id = ?", tenantID, broadcastID, contactID).
		Update("replied", true).Error
}

func toBroadcastModel(b broadcast.Broadcast) (broadcastModel, error) {
	tplJSON, err := json.Marshal(b.Template)
	if err != nil {
		return broadcastModel{}, err
	}
	return broadcastModel{
		ID:             b.ID,
		TenantID:       b.TenantID,
		Name:           b.Name,
		TemplateJSON:   string(tplJSON),
		Status:         string(b.Status),
		Total:          b.Counters.Total,
		Sent:           b.Counters.Sent,
		Delivered:      b.Counters.Delivered,
		Read:           b.Counters.Read,
		Failed:         b.Counters.Failed,
		Reply:          b.Counters.Reply,
		ChatbotOnReply: b.ChatbotOnReply,
		ScheduledAt:    b.ScheduledAt,
		StartedAt:      b.StartedAt,
		CompletedAt:    b.CompletedAt,
		CreatedAt:      b.CreatedAt,
	}, nil
}

func toRecipientModel(tenantID, broadcastID string, rec broadcast.Recipient) (broadcastRecipientModel, error) {
	varsJSON, err := json.Marshal(rec.Variables)
	if err != nil {
		return broadcastRecipientModel{}, err
	}
	status := rec.Status
	if status == "" {
		status = broadcast.RecipientPending
	}
	return broadcastRecipientModel{
		ID:                uuid.NewString(),
		BroadcastID:       broadcastID,
		TenantID:          tenantID,
		ContactID:         rec.ContactID,
		Phone:             rec.Phone,
		VariablesJSON:     string(varsJSON),
		ProviderMessageID: rec.ProviderMessageID,
		Status:            string(status),
		FailReason:        rec.FailReason,
		Replied:           rec.Replied,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func fromBroadcastModel(m broadcastModel, recipientModels []broadcastRecipientModel) (*broadcast.Broadcast, error) {
	var tpl broadcast.TemplateRef
	if m.TemplateJSON != "" {
		if err := json.Unmarshal([]byte(m.TemplateJSON), &tpl); err != nil {
			return nil, err
		}
	}

	recipients := make([]broadcast.Recipient, 0, len(recipientModels))
	for _, rm := range recipientModels {
		var vars map[string]string
		if rm.VariablesJSON != "" {
			if err := json.Unmarshal([]byte(rm.VariablesJSON), &vars); err != nil {
				return nil, err
			}
		}
		recipients = append(recipients, broadcast.Recipient{
			ContactID:         rm.ContactID,
			Phone:             rm.Phone,
			Variables:         vars,
			ProviderMessageID: rm.ProviderMessageID,
			Status:            broadcast.RecipientStatus(rm.Status),
			FailReason:        rm.FailReason,
			Replied:           rm.Replied,
		})
	}

	return &broadcast.Broadcast{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Name:       m.Name,
		Template:   tpl,
		Recipients: recipients,
		Status:     broadcast.Status(m.Status),
		Counters: broadcast.Counters{
			Total:     m.Total,
			Sent:      m.Sent,
			Delivered: m.Delivered,
			Read:      m.Read,
			Failed:    m.Failed,
			Reply:     m.Reply,
		},
		ChatbotOnReply: m.ChatbotOnReply,
		ScheduledAt:    m.ScheduledAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
	}, nil
}
