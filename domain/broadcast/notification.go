package broadcast

import (
	"context"
	"time"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationCancelled NotificationStatus = "cancelled"
)

// ScheduledNotification is a one-off future send — a reminder or
// transactional nudge outside a bulk Broadcast run — deduplicated per
// tenant by an externally supplied idempotency key (§3 "Scheduled
// notification").
type ScheduledNotification struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ExternalID string `json:"external_id"` // caller-supplied dedup key

	ContactID string      `json:"contact_id"`
	Template  TemplateRef `json:"template"`

	Status    NotificationStatus `json:"status"`
	SendAt    time.Time          `json:"send_at"`
	SentAt    *time.Time         `json:"sent_at,omitempty"`
	FailedMsg string             `json:"failed_reason,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// NotificationRepository persists scheduled notifications, enforcing
// (tenant, external id) uniqueness.
type NotificationRepository interface {
	// Create inserts a notification, or returns (existing, ErrDuplicate)
	// if (tenant, external id) already exists — the caller's retry-safe
	// idempotency contract.
	Create(ctx context.Context, n *ScheduledNotification) (*ScheduledNotification, error)
	Get(ctx context.Context, tenantID, id string) (*ScheduledNotification, error)
	Cancel(ctx context.Context, tenantID, id string) (bool, error)

	// DueForSend returns pending notifications whose SendAt has elapsed,
	// for the scheduler's minute-resolution sweep.
	DueForSend(ctx context.Context, now time.Time) ([]*ScheduledNotification, error)

	MarkSent(ctx context.Context, tenantID, id string, at time.Time) error
	MarkFailed(ctx context.Context, tenantID, id string, reason string) error
}

var ErrDuplicate = dupError{}

type dupError struct{}

func (dupError) Error() string { return "notification: duplicate external id for tenant" }
