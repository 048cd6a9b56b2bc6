// Package flow models the chatbot node-graph: flow definitions authored by
// a tenant, and the per-(tenant,contact) sessions that walk them.
package flow

import (
	"context"
	"time"
)

// WorkingHours gates the business_hours node and, when set on a Flow,
// whether the flow's trigger is even eligible to start a session.
type WorkingHours struct {
	Timezone string      `json:"timezone"` // IANA zone name, e.g. "America/Mexico_City"
	Windows  []DayWindow `json:"windows"`
}

type DayWindow struct {
	Weekday int    `json:"weekday"` // 0=Sunday .. 6=Saturday, time.Weekday convention
	Start   string `json:"start"`   // "HH:MM"
	End     string `json:"end"`     // "HH:MM"
}

// Definition is one authored flow: a graph of nodes and edges plus the
// trigger and session policy that governs it (§3 "Flow definition").
type Definition struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// IsDefault breaks ties when more than one flow could start, and is
	// the last-resort entry point when no keyword/catch-all matches
	// (§4.3 "entry resolution"). Keyword matching itself lives on the
	// flow's start_trigger node (StartTriggerConfig.Keywords).
	IsDefault bool `json:"is_default"`

	WorkingHours *WorkingHours `json:"working_hours,omitempty"`

	// SessionTimeoutSeconds idles out a suspended session back to no active
	// flow; zero means the platform default applies.
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty"`

	Enabled bool `json:"enabled"`
}

// NodeByID looks up a node by id, or returns (nil, false) for a dangling
// edge target — an authoring error the interpreter must fail loudly on.
func (d *Definition) NodeByID(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// StartNode returns the definition's single start_trigger node.
func (d *Definition) StartNode() (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].Type == NodeStartTrigger {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// EdgesFrom returns the outgoing edges of a node, in authored order.
func (d *Definition) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.FromNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgeFromHandle returns the single edge leaving nodeID on the given
// handle, or false if the graph doesn't wire that branch — the interpreter
// treats an unwired handle as "end the flow" rather than an error.
func (d *Definition) EdgeFromHandle(nodeID, handle string) (Edge, bool) {
	for _, e := range d.EdgesFrom(nodeID) {
		if e.FromHandle == handle {
			return e, true
		}
	}
	return Edge{}, false
}

// WithinWorkingHours reports whether t (tenant-local) falls inside the
// flow's working-hours policy. A nil policy always permits.
func (d *Definition) WithinWorkingHours(t time.Time) bool {
	if d.WorkingHours == nil {
		return true
	}
	loc, err := time.LoadLocation(d.WorkingHours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	weekday := int(local.Weekday())
	hm := local.Format("15:04")
	for _, w := range d.WorkingHours.Windows {
		if w.Weekday != weekday {
			continue
		}
		if hm >= w.Start && hm <= w.End {
			return true
		}
	}
	return false
}

// Repository persists flow definitions, scoped to a tenant.
type Repository interface {
	Create(ctx context.Context, def *Definition) (*Definition, error)
	Get(ctx context.Context, tenantID, id string) (*Definition, error)
	List(ctx context.Context, tenantID string) ([]*Definition, error)
	Update(ctx context.Context, def *Definition) (*Definition, error)
	Delete(ctx context.Context, tenantID, id string) error

	// ListEnabledTriggers returns every enabled flow for a tenant that can
	// serve as an entry point (has a start_trigger node), for trigger
	// resolution against an inbound message.
	ListEnabledTriggers(ctx context.Context, tenantID string) ([]*Definition, error)
}
