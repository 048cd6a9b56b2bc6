package flow

import (
	"context"
	"time"
)

// SessionStatus is the lifecycle of a flow session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"    // currently executing or suspended mid-graph
	SessionCompleted SessionStatus = "completed" // reached a node with no outgoing edge
	SessionExpired   SessionStatus = "expired"   // idled past SessionTimeoutSeconds
)

// Session is the execution state of one (tenant, contact) walking one flow
// definition: where it is, what it knows, and when it last moved (§3 "Flow
// session").
type Session struct {
	TenantID  string `json:"tenant_id"`
	ContactID string `json:"contact_id"`
	FlowID    string `json:"flow_id"`

	CurrentNodeID string `json:"current_node_id"`
	Variables     Bag    `json:"variables"`

	// AwaitingReply is set while suspended at a wait/button/list/flow node
	// (or at the step cap), so the
	// webhook ingester knows to route the next inbound message into the
	// interpreter instead of re-running trigger resolution.
	AwaitingReply bool `json:"awaiting_reply"`

	Status          SessionStatus `json:"status"`
	StepCount       int           `json:"step_count"`
	LastInteraction time.Time     `json:"last_interaction"`

	// SessionTimeoutSeconds, when non-zero, overrides the flow's default
	// (session_config node effect).
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty"`
}

// Expired reports whether the session has idled past its timeout as of now.
func (s *Session) Expired(now time.Time, defaultTimeout time.Duration) bool {
	timeout := defaultTimeout
	if s.SessionTimeoutSeconds > 0 {
		timeout = time.Duration(s.SessionTimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		return false
	}
	return now.Sub(s.LastInteraction) > timeout
}

// Store persists flow sessions keyed by (tenant, contact), one active
// session per pair (§5 concurrency model — updates must be serialized per
// key, never across keys).
type Store interface {
	// Get returns the session for (tenant, contact), or (nil, false) if
	// none is active.
	Get(ctx context.Context, tenantID, contactID string) (*Session, bool, error)

	// Save upserts the session, refreshing LastInteraction.
	Save(ctx context.Context, sess *Session) error

	// Delete removes the session, e.g. on completion or explicit reset.
	Delete(ctx context.Context, tenantID, contactID string) error

	// WithLock runs fn holding an exclusive lock on (tenant, contact),
	// guaranteeing at most one interpreter step runs per key at a time
	// even across process instances. Implementations that are already
	// single-process/single-shard-routed may satisfy this with a no-op
	// local mutex; distributed backends use a real lock (§5).
	WithLock(ctx context.Context, tenantID, contactID string, fn func(ctx context.Context) error) error
}
