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

type notificationModel struct {
	ID           string     `gorm:"primaryKey;column:id"`
	TenantID     string     `gorm:"column:tenant_id;not null;uniqueIndex:idx_notif_tenant_external"`
	ExternalID   string     `gorm:"column:external_id;not null;uniqueIndex:idx_notif_tenant_external"`
	ContactID    string     `gorm:"column:contact_id;not null"`
	TemplateJSON string     `gorm:"column:template;type:text"`
	Status       string     `gorm:"column:status;not null;index"`
	SendAt       time.Time  `gorm:"column:send_at;not null;index"`
	SentAt       *time.Time `gorm:"column:sent_at"`
	FailedMsg    string     `gorm:"column:failed_reason"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
}

func (notificationModel) TableName() string { return "scheduled_notifications" }

// NotificationRepository implements broadcast.NotificationRepository.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&notificationModel{})
}

func (r *NotificationRepository) Create(ctx context.Context, n *broadcast.ScheduledNotification) (*broadcast.ScheduledNotification, error) {
	var existing notificationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", n.TenantID, n.ExternalID).
		First(&existing).Error
	if err == nil {
		out, convErr := fromNotificationModel(existing)
		if convErr != nil {
			return nil, convErr
		}
		return out, broadcast.ErrDuplicate
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m, err := toNotificationModel(*n)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return fromNotificationModel(m)
}

func (r *NotificationRepository) Get(ctx context.Context, tenantID, id string) (*broadcast.ScheduledNotification, error) {
	var m notificationModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromNotificationModel(m)
}

func (r *NotificationRepository) Cancel(ctx context.Context, tenantID, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, string(broadcast.NotificationPending)).
		Update("status", string(broadcast.NotificationCancelled))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *NotificationRepository) DueForSend(ctx context.Context, now time.Time) ([]*broadcast.ScheduledNotification, error) {
	var models []notificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND send_at <= ?", string(broadcast.NotificationPending), now).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*broadcast.ScheduledNotification, 0, len(models))
	for _, m := range models {
		n, err := fromNotificationModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, tenantID, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"status": string(broadcast.NotificationSent), "sent_at": at}).Error
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, tenantID, id string, reason string) error {
	return r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"status": string(broadcast.NotificationFailed), "failed_reason": reason}).Error
}

func toNotificationModel(n broadcast.ScheduledNotification) (notificationModel, error) {
	tplJSON, err := json.Marshal(n.Template)
	if err != nil {
		return notificationModel{}, err
	}
	return notificationModel{
		ID:           n.ID,
		TenantID:     n.TenantID,
		ExternalID:   n.ExternalID,
		ContactID:    n.ContactID,
		TemplateJSON: string(tplJSON),
		Status:       string(n.Status),
		SendAt:       n.SendAt,
		SentAt:       n.SentAt,
		FailedMsg:    n.FailedMsg,
		CreatedAt:    n.CreatedAt,
	}, nil
}

func fromNotificationModel(m notificationModel) (*broadcast.ScheduledNotification, error) {
	var tpl broadcast.TemplateRef
	if m.TemplateJSON != "" {
		if err := json.Unmarshal([]byte(m.TemplateJSON), &tpl); err != nil {
			return nil, err
		}
	}
	return &broadcast.ScheduledNotification{
		ID:         m.ID,
		TenantID:   m.TenantID,
		ExternalID: m.ExternalID,
		ContactID:  m.ContactID,
		Template:   tpl,
		Status:     broadcast.NotificationStatus(m.Status),
		SendAt:     m.SendAt,
		SentAt:     m.SentAt,
		FailedMsg:  m.FailedMsg,
		CreatedAt:  m.CreatedAt,
	}, nil
}
