// Package interpreter executes flow definitions: resolving which flow a
// contact entered, stepping its node graph one node at a time, and
// suspending/resuming a session across inbound messages.
package interpreter

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/domain/flow"
)

// maxSteps bounds a single invocation of Run to prevent a cyclic graph
// (e.g. a router looping back on itself) from spinning forever (§4.3
// "step cap").
const maxSteps = 30

const defaultSessionTimeout = 24 * time.Hour

// InboundEvent is the normalized trigger for one interpreter invocation:
// either a fresh inbound message or, for an already-suspended session, the
// reply to a wait/button/list/flow node.
type InboundEvent struct {
	Text       string
	MediaID    string
	MediaURL   string
	MediaMime  string
	ButtonID   string // button/list reply id, when the inbound is an interactive reply
	ReceivedAt time.Time

	// MediaKind is the inbound's raw Cloud API type ("text", "image",
	// "video", "audio", "document", ...), used to validate a wait node's
	// ExpectedType (§4.3 "wait").
	MediaKind string

	// FormFields carries a Meta Flow form's submitted field values
	// (nfm_reply), when the inbound is a flow-form submission (§4.3 "flow").
	FormFields map[string]any
}

// Sender abstracts outbound message delivery so the interpreter never
// depends on the Cloud API wire format directly.
type Sender interface {
	SendText(ctx context.Context, tenantID, contactID, text string) (providerMessageID string, err error)
	SendMedia(ctx context.Context, tenantID, contactID string, kind flow.NodeType, url, caption string) (providerMessageID string, err error)
	SendButtons(ctx context.Context, tenantID, contactID string, cfg *flow.ButtonConfig) (providerMessageID string, err error)
	SendList(ctx context.Context, tenantID, contactID string, cfg *flow.ListConfig) (providerMessageID string, err error)
	SendFlow(ctx context.Context, tenantID, contactID string, cfg *flow.FlowConfig) (providerMessageID string, err error)
	SendCatalogue(ctx context.Context, tenantID, contactID string, cfg *flow.CatalogueConfig) (providerMessageID string, err error)
	SendMediaGroup(ctx context.Context, tenantID, contactID string, urls []string, caption string) (providerMessageID string, err error)
}

// Engine walks flow definitions against a Sender and the integration
// surface each node type needs (§4.3).
type Engine struct {
	Flows         flow.Repository
	Sessions      flow.Store
	Contacts      contact.Repository
	Conversations conversation.ConversationRepository
	Sender        Sender

	HTTP      HTTPClient
	SQL       SQLExecutor
	Sheets    SheetsClient
	Drive     DriveClient
	Payments  PaymentClient
	Commerce  CommerceClient
	Publisher EventPublisher

	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// EventPublisher fans out interpreter side effects (e.g. a flow
// completing, a human-handoff request) to the realtime layer. Nil is a
// valid no-op publisher.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID string, event string, payload map[string]any)
}

func (e *Engine) publish(ctx context.Context, tenantID, event string, payload map[string]any) {
	if e.Publisher == nil {
		return
	}
	e.Publisher.Publish(ctx, tenantID, event, payload)
}

// Run advances (or starts) the session for (tenantID, contactID) against
// ev, returning the resulting session. It always runs under the store's
// per-key lock (§5).
func (e *Engine) Run(ctx context.Context, tenantID, contactID string, ev InboundEvent) (*flow.Session, error) {
	var result *flow.Session
	err := e.Sessions.WithLock(ctx, tenantID, contactID, func(ctx context.Context) error {
		sess, err := e.runLocked(ctx, tenantID, contactID, ev)
		result = sess
		return err
	})
	return result, err
}

func (e *Engine) runLocked(ctx context.Context, tenantID, contactID string, ev InboundEvent) (*flow.Session, error) {
	sess, found, err := e.Sessions.Get(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	if found && sess.Status == flow.SessionActive {
		timeout := defaultSessionTimeout
		if d, err := e.Flows.Get(ctx, tenantID, sess.FlowID); err == nil && d.SessionTimeoutSeconds > 0 {
			timeout = time.Duration(d.SessionTimeoutSeconds) * time.Second
		}
		if sess.Expired(e.now(), timeout) {
			sess.Status = flow.SessionExpired
			_ = e.Sessions.Delete(ctx, tenantID, contactID)
			found = false
		}
	}

	if !found || sess.Status != flow.SessionActive {
		def, entry, ok, err := e.resolveEntry(ctx, tenantID, ev)
		if err != nil {
			return nil, err
		}
		if !ok {
			// No flow matched; leave no session behind so the next message
			// re-attempts trigger resolution.
			return nil, nil
		}
		sess = &flow.Session{
			TenantID:        tenantID,
			ContactID:       contactID,
			FlowID:          def.ID,
			CurrentNodeID:   entry.ID,
			Variables:       flow.Bag{},
			Status:          flow.SessionActive,
			LastInteraction: e.now(),
		}
		// handleStartTrigger needs the triggering text to record the matched
		// keyword/branch; bindReply seeds the same key on every later resume.
		sess.Variables.Set("last_reply", ev.Text)
	}

	def, err := e.Flows.Get(ctx, tenantID, sess.FlowID)
	if err != nil {
		return nil, err
	}

	if sess.AwaitingReply {
		sess.AwaitingReply = false
		res, err := e.bindReply(ctx, def, sess, ev)
		if err != nil {
			return nil, err
		}
		if res.Suspend {
			// A retry-on-invalid mismatch: round-trip back to the same node
			// awaiting another reply (§8 round-trip law).
			sess.AwaitingReply = true
			if err := e.Sessions.Save(ctx, sess); err != nil {
				return nil, err
			}
			return sess, nil
		}
		nextID, ok := e.advance(def, sess.CurrentNodeID, res.Handle)
		if !ok {
			sess.Status = flow.SessionCompleted
			if err := e.Sessions.Save(ctx, sess); err != nil {
				return nil, err
			}
			return sess, nil
		}
		sess.CurrentNodeID = nextID
	}

	sess.StepCount = 0
	if err := e.stepLoop(ctx, def, sess, ev); err != nil {
		return sess, err
	}

	if sess.Status == flow.SessionCompleted {
		_ = e.Sessions.Delete(ctx, tenantID, contactID)
		return sess, nil
	}
	if err := e.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// resolveEntry finds the flow + entry node a fresh inbound event should
// start, in priority order (§4.3 "entry resolution on a new session"):
//  1. a flow whose start_trigger keyword list exactly (or, under
//     PartialMatch, partially) matches the inbound text;
//  2. (handled by the caller before resolveEntry is even invoked: an
//     already-active session within its flow's timeout resumes instead);
//  3. a flow with a catch-all "*" trigger;
//  4. the first enabled flow whose start_trigger accepts "any" text, i.e.
//     carries no keyword at all;
//  5. the tenant's default flow.
//
// Working-hours gates entry at every step; a flow outside its window is
// skipped even if it would otherwise match.
func (e *Engine) resolveEntry(ctx context.Context, tenantID string, ev InboundEvent) (*flow.Definition, *flow.Node, bool, error) {
	defs, err := e.Flows.ListEnabledTriggers(ctx, tenantID)
	if err != nil {
		return nil, nil, false, err
	}

	var catchAll, anyMatch, fallback *flow.Definition

	for _, def := range defs {
		if !def.WithinWorkingHours(e.now()) {
			continue
		}
		start, ok := def.StartNode()
		if !ok {
			continue
		}
		cfg, _ := start.Config.(*flow.StartTriggerConfig)

		if matchesStartTrigger(cfg, ev.Text) {
			return def, start, true, nil
		}
		if hasCatchAllKeyword(cfg) && catchAll == nil {
			catchAll = def
		}
		if (cfg == nil || len(cfg.Keywords) == 0) && anyMatch == nil {
			anyMatch = def
		}
		if def.IsDefault && fallback == nil {
			fallback = def
		}
	}

	for _, def := range []*flow.Definition{catchAll, anyMatch, fallback} {
		if def == nil {
			continue
		}
		if start, ok := def.StartNode(); ok {
			return def, start, true, nil
		}
	}
	return nil, nil, false, nil
}

// matchesStartTrigger reports whether text matches one of cfg's keywords,
// case-insensitively, exactly or (under PartialMatch) as a substring.
func matchesStartTrigger(cfg *flow.StartTriggerConfig, text string) bool {
	if cfg == nil || len(cfg.Keywords) == 0 {
		return false
	}
	norm := strings.TrimSpace(strings.ToLower(text))
	for _, kw := range cfg.Keywords {
		if kw == "*" {
			continue
		}
		k := strings.TrimSpace(strings.ToLower(kw))
		if k == "" {
			continue
		}
		if cfg.PartialMatch {
			if strings.Contains(norm, k) {
				return true
			}
		} else if norm == k {
			return true
		}
	}
	return false
}

func hasCatchAllKeyword(cfg *flow.StartTriggerConfig) bool {
	if cfg == nil {
		return false
	}
	for _, kw := range cfg.Keywords {
		if kw == "*" {
			return true
		}
	}
	return false
}

// bindReply interprets the inbound event against the node the session is
// suspended on: stores its payload into the bag, resolves the outgoing
// handle (a button/list selection id, a keyword's matched index, ...), and
// signals Suspend when a retry-on-invalid mismatch should round-trip the
// session back onto the same node (§4.3, §8 round-trip law).
func (e *Engine) bindReply(ctx context.Context, def *flow.Definition, sess *flow.Session, ev InboundEvent) (stepResult, error) {
	node, ok := def.NodeByID(sess.CurrentNodeID)
	if !ok {
		return stepResult{}, &flow.UnknownNodeTypeError{Type: ""}
	}

	sess.Variables.Set("last_reply", ev.Text)
	sess.Variables.Set("last_input", ev.Text)
	sess.Variables.Set("last_response", ev.Text)
	if ev.ButtonID != "" {
		sess.Variables.Set("last_reply_id", ev.ButtonID)
	}

	switch cfg := node.Config.(type) {
	case *flow.WaitConfig:
		if !matchesExpectedType(cfg.ExpectedType, ev) && cfg.RetryOnInvalid {
			errText := cfg.ErrorText
			if errText == "" {
				errText = "Sorry, that doesn't look right. Please try again."
			}
			if _, err := e.Sender.SendText(ctx, sess.TenantID, sess.ContactID, errText); err != nil {
				return stepResult{}, err
			}
			return stepResult{Suspend: true}, nil
		}
		if cfg.SaveAs != "" {
			switch {
			case ev.ButtonID != "":
				sess.Variables.Set(cfg.SaveAs, ev.ButtonID)
			case ev.MediaID != "":
				sess.Variables.Set(cfg.SaveAs, ev.MediaID)
			default:
				sess.Variables.Set(cfg.SaveAs, ev.Text)
			}
		}
		return stepResult{}, nil

	case *flow.ButtonConfig:
		if id, ok := matchButtonReply(cfg, ev); ok {
			return stepResult{Handle: id}, nil
		}
		if cfg.RetryOnInvalid {
			if _, err := e.Sender.SendButtons(ctx, sess.TenantID, sess.ContactID, cfg); err != nil {
				return stepResult{}, err
			}
			return stepResult{Suspend: true}, nil
		}
		return stepResult{Handle: "default"}, nil

	case *flow.ListConfig:
		return e.bindListReply(ctx, sess, cfg, ev)

	case *flow.FlowConfig:
		if cfg.SaveAs != "" {
			sess.Variables.Set(cfg.SaveAs, ev.FormFields)
		}
		for k, v := range ev.FormFields {
			sess.Variables.Set(k, v)
		}
		return stepResult{}, nil

	default:
		return stepResult{}, nil
	}
}

// matchesExpectedType reports whether ev satisfies a wait node's
// ExpectedType constraint; "" and "any" accept anything.
func matchesExpectedType(expected string, ev InboundEvent) bool {
	switch expected {
	case "", "any":
		return true
	case "file":
		return ev.MediaKind == "document" || ev.MediaID != ""
	default:
		return ev.MediaKind == expected
	}
}

// matchButtonReply matches an inbound reply against a button node's
// options: by id first (the interactive reply's metadata id), then by
// title text (a user who typed the button's label instead of tapping it).
func matchButtonReply(cfg *flow.ButtonConfig, ev InboundEvent) (string, bool) {
	if ev.ButtonID != "" {
		for _, b := range cfg.Buttons {
			if b.ID == ev.ButtonID {
				return b.ID, true
			}
		}
	}
	text := strings.TrimSpace(strings.ToLower(ev.Text))
	if text == "" {
		return "", false
	}
	for _, b := range cfg.Buttons {
		if strings.ToLower(b.Title) == text {
			return b.ID, true
		}
	}
	return "", false
}

// advance resolves the next node id from nodeID's handle, or reports
// false when nothing is wired — the interpreter's "end of flow" signal.
func (e *Engine) advance(def *flow.Definition, nodeID, handle string) (string, bool) {
	edge, ok := def.EdgeFromHandle(nodeID, handle)
	if !ok {
		return "", false
	}
	return edge.ToNode, true
}

// stepLoop runs nodes starting at sess.CurrentNodeID until the flow
// completes (including at a terminal agent node), suspends at a
// wait/button/list/flow node, or the step cap is hit.
func (e *Engine) stepLoop(ctx context.Context, def *flow.Definition, sess *flow.Session, ev InboundEvent) error {
	for {
		if sess.StepCount >= maxSteps {
			logrus.WithFields(logrus.Fields{
				"tenant_id":  sess.TenantID,
				"contact_id": sess.ContactID,
				"flow_id":    sess.FlowID,
			}).Warn("interpreter: step cap reached, suspending session")
			sess.Status = flow.SessionActive
			sess.AwaitingReply = true
			return nil
		}

		node, ok := def.NodeByID(sess.CurrentNodeID)
		if !ok {
			return &flow.UnknownNodeTypeError{Type: ""}
		}

		handler, ok := handlers[node.Type]
		if !ok {
			return &flow.UnknownNodeTypeError{Type: node.Type}
		}

		sess.StepCount++
		res, err := handler(ctx, e, def, sess, node)
		if err != nil {
			return err
		}
		if res.Suspend {
			sess.AwaitingReply = true
			return nil
		}
		if res.Terminate {
			sess.Status = flow.SessionCompleted
			e.publish(ctx, sess.TenantID, "flow.completed", map[string]any{
				"contact_id": sess.ContactID,
				"flow_id":    sess.FlowID,
			})
			return nil
		}

		nextID, ok := e.advance(def, node.ID, res.Handle)
		if !ok {
			sess.Status = flow.SessionCompleted
			e.publish(ctx, sess.TenantID, "flow.completed", map[string]any{
				"contact_id": sess.ContactID,
				"flow_id":    sess.FlowID,
			})
			return nil
		}
		sess.CurrentNodeID = nextID
	}
}

// stepResult is what every node handler returns: which outgoing handle to
// follow next, a request to suspend awaiting the next inbound event, or a
// request to end the session outright regardless of any outgoing edge
// (used by terminal nodes like agent, §4.3 "agent").
type stepResult struct {
	Handle    string
	Suspend   bool
	Terminate bool
}

type handlerFunc func(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error)

var handlers map[flow.NodeType]handlerFunc

func init() {
	handlers = map[flow.NodeType]handlerFunc{
		flow.NodeStartTrigger:     handleStartTrigger,
		flow.NodeMessage:          handleMessage,
		flow.NodeImage:            handleMedia,
		flow.NodeVideo:            handleMedia,
		flow.NodeDocument:         handleMedia,
		flow.NodeButton:           handleButton,
		flow.NodeList:             handleList,
		flow.NodeFlowRef:          handleFlowRef,
		flow.NodeWait:             handleWait,
		flow.NodeDelay:            handleDelay,
		flow.NodeVariable:         handleVariable,
		flow.NodeListVariable:     handleListVariable,
		flow.NodeUpdateContact:    handleUpdateContact,
		flow.NodeMap:              handleMap,
		flow.NodeCondition:        handleCondition,
		flow.NodeRouter:           handleRouter,
		flow.NodeKeywordMatch:     handleKeywordMatch,
		flow.NodeValidator:        handleValidator,
		flow.NodePhoneParser:      handlePhoneParser,
		flow.NodeBusinessHours:    handleBusinessHours,
		flow.NodeAPI:              handleAPI,
		flow.NodeSQL:              handleSQL,
		flow.NodeGoogleSheet:      handleGoogleSheet,
		flow.NodeGoogleSheetQuery: handleGoogleSheetQuery,
		flow.NodeDriveImageLookup: handleDriveImageLookup,
		flow.NodeMediaForward:     handleMediaForward,
		flow.NodePayment:          handlePayment,
		flow.NodeShopify:          handleShopify,
		flow.NodeWooCommerce:      handleWooCommerce,
		flow.NodeSendExternal:     handleSendExternal,
		flow.NodeCatalogue:        handleCatalogue,
		flow.NodeGroupImages:      handleGroupImages,
		flow.NodeLoop:             handleLoop,
		flow.NodeAgent:            handleAgent,
		flow.NodeSessionConfig:    handleSessionConfig,
	}
}
