// Package broadcast models bulk template sends: a Broadcast fans out one
// approved WhatsApp template to a recipient list in rate-limited batches,
// tracking per-message status as delivery webhooks arrive.
package broadcast

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the broadcast can no longer transition (§8
// invariant: a terminal broadcast's counters never change again).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Counters track per-recipient outcomes. Sent+Failed never exceeds Total;
// Delivered, Read and Reply are subsets of Sent (§8 invariant: counters
// monotone, never decrease).
type Counters struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`

	// Reply counts recipients whose first post-send reply was attributed
	// back to this broadcast (§3 "Attribution").
	Reply int `json:"reply"`
}

// TemplateRef names the approved WhatsApp template and its header media, if
// any (§4.4).
type TemplateRef struct {
	Name           string            `json:"name"`
	Language       string            `json:"language"`
	HeaderMediaURL string            `json:"header_media_url,omitempty"`
	Params         map[string]string `json:"params,omitempty"` // component placeholder -> literal value, shared across recipients
}

// RecipientStatus tracks one recipient's delivery lifecycle, mirroring the
// Cloud API's sent/delivered/read/failed status sequence.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientRead      RecipientStatus = "read"
	RecipientFailed    RecipientStatus = "failed"
)

var recipientStatusRank = map[RecipientStatus]int{
	RecipientPending:   0,
	RecipientSent:      1,
	RecipientDelivered: 2,
	RecipientRead:      3,
	RecipientFailed:    1, // terminal but not an ordering peer of delivered/read
}

// RecipientAdvancesTo reports whether a status transition is a forward
// move, mirroring conversation.AdvancesTo: a webhook replaying an
// already-applied or out-of-order status is a no-op rather than a
// regression (§8 invariant: counters monotone).
func RecipientAdvancesTo(from, to RecipientStatus) bool {
	if from == RecipientFailed {
		return false
	}
	if to == RecipientFailed {
		return from != RecipientFailed
	}
	return recipientStatusRank[to] > recipientStatusRank[from]
}

// Recipient is one target of a broadcast: the contact to send to, the
// per-recipient template variables, and the delivery/attribution state
// tracked as send results and status webhooks arrive (§3 "Broadcast",
// §8 "per-recipient attribution").
type Recipient struct {
	ContactID string            `json:"contact_id"`
	Phone     string            `json:"phone"`
	Variables map[string]string `json:"variables,omitempty"` // component placeholder -> value, this recipient only

	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	Status            RecipientStatus `json:"status"`
	FailReason        string          `json:"fail_reason,omitempty"`

	// Replied marks that this recipient's first post-send inbound reply has
	// already been attributed to this broadcast; later replies don't
	// double-count the Reply counter.
	Replied bool `json:"replied,omitempty"`
}

// Broadcast is one bulk-send job (§3 "Broadcast").
type Broadcast struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	Template TemplateRef `json:"template"`

	// Recipients is the resolved recipient list at creation time; the
	// dispatcher does not re-resolve membership mid-run.
	Recipients []Recipient `json:"recipients"`

	Status   Status   `json:"status"`
	Counters Counters `json:"counters"`

	// ChatbotOnReply lets a recipient's reply to this broadcast run the flow
	// interpreter (normal entry resolution); when false, replies in a
	// conversation attributed to this broadcast do not reach the
	// interpreter (§4.4).
	ChatbotOnReply bool `json:"chatbot_on_reply"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Repository persists broadcasts, their per-recipient state, and counters.
type Repository interface {
	Create(ctx context.Context, b *Broadcast) (*Broadcast, error)
	Get(ctx context.Context, tenantID, id string) (*Broadcast, error)
	List(ctx context.Context, tenantID string) ([]*Broadcast, error)

	// TransitionStatus moves the broadcast to a new status iff the current
	// status is not terminal, returning (false, nil) on a no-op attempt
	// against an already-terminal broadcast (idempotent cancel/start, §8).
	TransitionStatus(ctx context.Context, tenantID, id string, to Status) (bool, error)

	// IncrementCounters atomically bumps the named counters by delta
	// amounts — used both by the dispatcher (Sent/Failed as batches are
	// sent) and by webhook status reconciliation (Delivered/Read/Reply).
	IncrementCounters(ctx context.Context, tenantID, id string, delta Counters) error

	// DuePending returns scheduled broadcasts whose ScheduledAt has
	// elapsed, for the scheduler to start dispatching.
	DuePending(ctx context.Context, now time.Time) ([]*Broadcast, error)

	// RecordRecipientSent stamps a recipient's provider message id and
	// marks it sent, once the dispatcher's send call for it succeeds.
	RecordRecipientSent(ctx context.Context, tenantID, broadcastID, contactID, providerMessageID string) error

	// RecordRecipientFailed marks a recipient failed with reason, when the
	// dispatcher's send call for it errors.
	RecordRecipientFailed(ctx context.Context, tenantID, broadcastID, contactID, reason string) error

	// AdvanceRecipientStatus applies a monotonic status transition to the
	// recipient owning providerMessageID, across any broadcast for the
	// tenant, for status-webhook reconciliation. applied is false when the
	// transition was a no-op (unknown id, or not a forward move).
	AdvanceRecipientStatus(ctx context.Context, tenantID, providerMessageID string, to RecipientStatus) (broadcastID string, applied bool, err error)

	// FindUnattributedRecipient locates the most recent broadcast recipient
	// for (tenant, contact) that has not yet been marked Replied, for
	// first-reply attribution (§3 "Attribution").
	FindUnattributedRecipient(ctx context.Context, tenantID, contactID string) (broadcastID string, found bool, err error)

	// MarkRecipientReplied flags a recipient as attributed so a contact's
	// later replies don't re-increment the Reply counter.
	MarkRecipientReplied(ctx context.Context, tenantID, broadcastID, contactID string) error
}
