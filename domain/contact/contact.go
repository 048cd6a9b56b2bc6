// Package contact models an end user (customer) exchanging messages with a
// tenant over WhatsApp. Grounded on the teacher's clients/domain.Client
// concept, narrowed to the WhatsApp Cloud API identity (tenant, provider id).
package contact

import (
	"context"
	"time"
)

// Contact is created lazily on first inbound message from a new provider id.
type Contact struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ProviderID  string    `json:"provider_id"` // WhatsApp wa_id, digits only
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name"`
	ProfileName string    `json:"profile_name"`
	Labels      []string  `json:"labels,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateRequest mutates mutable contact fields; used by the interpreter's
// update_contact node.
type UpdateRequest struct {
	DisplayName *string
	Email       *string
	AddLabels   []string
}

// Repository persists contacts, scoped to a tenant.
type Repository interface {
	// GetOrCreate upserts by (tenant, provider id) — the webhook ingester's
	// first step for every inbound message.
	GetOrCreate(ctx context.Context, tenantID, providerID, profileName string) (*Contact, error)
	Get(ctx context.Context, tenantID, id string) (*Contact, error)
	Update(ctx context.Context, tenantID, id string, req UpdateRequest) (*Contact, error)
}
