// Package conversation models the unified inbox: one open conversation per
// (tenant, contact), and the messages exchanged within it.
package conversation

import (
	"context"
	"time"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

// Conversation carries inbox bookkeeping for a (tenant, contact) pair.
type Conversation struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	ContactID   string `json:"contact_id"`
	Status      Status `json:"status"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	LastMessage string `json:"last_message_preview"`
	LastAt      time.Time `json:"last_message_at"`
	Unread      int    `json:"unread"`

	// BroadcastID, when set, attributes this conversation to the most
	// recent broadcast that targeted its contact (§3 Attribution).
	BroadcastID string `json:"broadcast_id,omitempty"`
}

// ConversationRepository persists conversations and enforces the "one open
// conversation per (tenant, contact)" invariant.
type ConversationRepository interface {
	// GetOrOpen returns the existing open conversation for (tenant, contact)
	// or creates one.
	GetOrOpen(ctx context.Context, tenantID, contactID string) (*Conversation, error)
	Get(ctx context.Context, tenantID, id string) (*Conversation, error)

	// List returns a tenant's conversations ordered most-recently-active
	// first, for the inbox listing surface.
	List(ctx context.Context, tenantID string) ([]*Conversation, error)

	// TouchIncoming records the arrival of an inbound message: bumps
	// LastMessage/LastAt and increments Unread. Must be serialized
	// per-conversation (§5).
	TouchIncoming(ctx context.Context, tenantID, id, preview string, at time.Time) error

	// TouchOutgoing records an outbound message's preview without touching
	// the unread counter.
	TouchOutgoing(ctx context.Context, tenantID, id, preview string, at time.Time) error

	// MarkRead zeroes Unread and marks the given inbound message ids read.
	MarkRead(ctx context.Context, tenantID, id string, messageIDs []string) error

	// AttributeToBroadcast sets BroadcastID the first time a contact with a
	// recent broadcast send replies. No-op if already attributed.
	AttributeToBroadcast(ctx context.Context, tenantID, id, broadcastID string) error

	SetAssignee(ctx context.Context, tenantID, id, agentID string) error
	SetStatus(ctx context.Context, tenantID, id string, status Status) error
}
