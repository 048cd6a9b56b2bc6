package conversation

import (
	"context"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type MessageType string

const (
	TypeText       MessageType = "text"
	TypeImage      MessageType = "image"
	TypeVideo      MessageType = "video"
	TypeAudio      MessageType = "audio"
	TypeDocument   MessageType = "document"
	TypeLocation   MessageType = "location"
	TypeContacts   MessageType = "contacts"
	TypeSticker    MessageType = "sticker"
	TypeInteractive MessageType = "interactive"
	TypeButton     MessageType = "button"
	TypeList       MessageType = "list"
	TypeTemplate   MessageType = "template"
	TypeReaction   MessageType = "reaction"
	TypeOrder      MessageType = "order"
	TypeCatalog    MessageType = "catalog"
	TypeFlow       MessageType = "flow"
	TypeSystem     MessageType = "system"
	TypeUnknown    MessageType = "unknown"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank gives the monotone ordering pending < sent < delivered < read,
// with failed terminal and incomparable to the others (§8 invariant 3).
var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// AdvancesTo reports whether moving from `from` to `to` is a legal
// monotone transition: advances the chain, or lands on the terminal
// `failed` state from any non-terminal status.
func AdvancesTo(from, to MessageStatus) bool {
	if from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fr, ok1 := statusRank[from]
	tr, ok2 := statusRank[to]
	if !ok1 || !ok2 {
		return false
	}
	return tr > fr
}

// Message is one WhatsApp message, inbound or outbound, attached to a
// conversation that belongs to the same tenant.
type Message struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	ConversationID    string        `json:"conversation_id"`
	Direction         Direction     `json:"direction"`
	Type              MessageType   `json:"type"`
	Body              string        `json:"body,omitempty"`
	Caption           string        `json:"caption,omitempty"`
	MediaURL          string        `json:"media_url,omitempty"`
	MediaID           string        `json:"media_id,omitempty"`
	MediaMime         string        `json:"media_mime,omitempty"`
	MediaSize         int64         `json:"media_size,omitempty"`
	FileName          string        `json:"file_name,omitempty"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
}

// MessageRepository persists messages. ProviderMessageID is the
// idempotency key for inbound provider events (§8 invariant 6).
type MessageRepository interface {
	// Create inserts a message. If ProviderMessageID is set and already
	// exists for the tenant, Create returns (existing, ErrDuplicate) so
	// callers can short-circuit fan-out without reprocessing.
	Create(ctx context.Context, msg *Message) (*Message, error)

	GetByProviderID(ctx context.Context, tenantID, providerMessageID string) (*Message, error)

	// AdvanceStatus applies a monotone status transition by provider id.
	// Returns (false, nil) when the transition is a no-op downgrade (§7).
	AdvanceStatus(ctx context.Context, tenantID, providerMessageID string, to MessageStatus, failReason string) (bool, error)

	MarkRead(ctx context.Context, tenantID, conversationID string, ids []string) error
	ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]*Message, error)
}

// ErrDuplicate is returned by Create when a message with the same
// ProviderMessageID already exists for the tenant.
var ErrDuplicate = dupError{}

type dupError struct{}

func (dupError) Error() string { return "message: duplicate provider message id" }
