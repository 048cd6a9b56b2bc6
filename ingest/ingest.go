// Package ingest processes inbound WhatsApp Cloud API webhook deliveries:
// signature verification, tenant resolution, contact/conversation
// bookkeeping, and fan-out to the flow interpreter and status reconciler
// (§4.2).
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/interpreter"
	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/provider/cloudapi"
)

// Ingester wires the inbound webhook pipeline end to end.
type Ingester struct {
	AppSecret string // platform-level Meta app secret, used for HMAC verification

	Tenants       tenant.Repository
	Contacts      contact.Repository
	Conversations conversation.ConversationRepository
	Messages      conversation.MessageRepository
	Broadcasts    broadcast.Repository

	Engine    *interpreter.Engine
	Publisher interpreter.EventPublisher

	// HTTPClient forwards a copy of every inbound event to a tenant's
	// ExternalWebURL, when configured (§4.2 "external forwarder").
	HTTPClient *http.Client

	Now func() time.Time
}

func (i *Ingester) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// VerifyHandshake answers the Cloud API's GET subscription challenge for
// a given tenant.
func (i *Ingester) VerifyHandshake(ctx context.Context, tenantID, mode, token, challenge string) (string, error) {
	t, err := i.Tenants.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	resp, ok := cloudapi.VerifyHandshake(mode, token, challenge, t.VerifySecret)
	if !ok {
		return "", apperror.Auth("webhook verify token mismatch")
	}
	return resp, nil
}

// HandlePayload verifies the HMAC signature, parses the envelope, and
// dispatches every message/status event it contains. Errors from
// per-event processing are logged and skipped rather than failing the
// whole batch, so one malformed event never blocks its siblings — but
// the top-level signature check is absolute.
func (i *Ingester) HandlePayload(ctx context.Context, body []byte, signatureHeader string) error {
	if i.AppSecret != "" && !cloudapi.VerifySignature(i.AppSecret, body, signatureHeader) {
		return apperror.Auth("webhook signature verification failed")
	}

	env, err := cloudapi.ParseEnvelope(body)
	if err != nil {
		return apperror.Validation("malformed webhook payload: " + err.Error())
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			i.handleChange(ctx, change.Value)
		}
	}
	return nil
}

func (i *Ingester) handleChange(ctx context.Context, v cloudapi.ChangeValue) {
	t, err := i.Tenants.GetByPhoneNumberID(ctx, v.Metadata.PhoneNumberID)
	if err != nil {
		logrus.WithError(err).WithField("phone_number_id", v.Metadata.PhoneNumberID).Warn("ingest: unresolved tenant")
		return
	}
	if !t.Active() {
		return
	}

	profiles := make(map[string]string, len(v.Contacts))
	for _, c := range v.Contacts {
		profiles[c.WaID] = c.Profile.Name
	}

	for _, msg := range v.Messages {
		if err := i.handleInboundMessage(ctx, t, msg, profiles[msg.From]); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"tenant_id": t.ID, "message_id": msg.ID}).Error("ingest: inbound message failed")
		}
	}
	for _, st := range v.Statuses {
		if err := i.handleStatus(ctx, t, st); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"tenant_id": t.ID, "message_id": st.ID}).Error("ingest: status update failed")
		}
	}

	i.forwardExternal(ctx, t, v)
}

func (i *Ingester) handleInboundMessage(ctx context.Context, t *tenant.Tenant, msg cloudapi.InboundMessage, profileName string) error {
	c, err := i.Contacts.GetOrCreate(ctx, t.ID, msg.From, profileName)
	if err != nil {
		return err
	}

	conv, err := i.Conversations.GetOrOpen(ctx, t.ID, c.ID)
	if err != nil {
		return err
	}

	text, buttonID := msg.ReplyText()
	ts, _ := parseUnixSeconds(msg.Timestamp)

	record := &conversation.Message{
		TenantID:          t.ID,
		ConversationID:    conv.ID,
		Direction:         conversation.DirectionIn,
		Type:              inboundMessageType(msg),
		Body:              text,
		ProviderMessageID: msg.ID,
		Status:            conversation.StatusDelivered,
		Timestamp:         ts,
	}
	med := inboundMedia(msg)
	if med != nil {
		record.MediaID = med.ID
		record.MediaMime = med.MimeType
		record.Caption = med.Caption
	}

	if _, err := i.Messages.Create(ctx, record); err != nil {
		if err == conversation.ErrDuplicate {
			return nil // already processed this provider message id
		}
		return err
	}

	if err := i.Conversations.TouchIncoming(ctx, t.ID, conv.ID, text, ts); err != nil {
		return err
	}

	i.publish(ctx, t.ID, "message.received", map[string]any{
		"conversation_id": conv.ID,
		"contact_id":      c.ID,
		"message_id":      record.ID,
	})

	if broadcastID, attributed := i.attributeReply(ctx, t.ID, c.ID, conv); attributed {
		conv.BroadcastID = broadcastID
	}

	if i.Engine != nil && i.chatbotAllowed(ctx, t.ID, conv) {
		formFields, _ := msg.FormFields()
		ev := interpreter.InboundEvent{
			Text:       text,
			ButtonID:   buttonID,
			ReceivedAt: ts,
			MediaKind:  msg.Type,
			FormFields: formFields,
		}
		if med != nil {
			ev.MediaID = med.ID
			ev.MediaMime = med.MimeType
		}
		if _, err := i.Engine.Run(ctx, t.ID, c.ID, ev); err != nil {
			return err
		}
	}
	return nil
}

// attributeReply performs first-reply attribution (§3 "Attribution"): the
// first inbound message from a contact after a broadcast send is traced
// back to that broadcast, and its Reply counter incremented exactly once.
// Already-attributed conversations, and contacts with no pending broadcast
// recipient, are no-ops. Best-effort: attribution failures never block
// message ingestion.
func (i *Ingester) attributeReply(ctx context.Context, tenantID, contactID string, conv *conversation.Conversation) (broadcastID string, attributed bool) {
	if i.Broadcasts == nil || conv.BroadcastID != "" {
		return "", false
	}
	broadcastID, found, err := i.Broadcasts.FindUnattributedRecipient(ctx, tenantID, contactID)
	if err != nil || !found {
		return "", false
	}
	if err := i.Conversations.AttributeToBroadcast(ctx, tenantID, conv.ID, broadcastID); err != nil {
		return "", false
	}
	if err := i.Broadcasts.MarkRecipientReplied(ctx, tenantID, broadcastID, contactID); err != nil {
		return "", false
	}
	_ = i.Broadcasts.IncrementCounters(ctx, tenantID, broadcastID, broadcast.Counters{Reply: 1})
	return broadcastID, true
}

// chatbotAllowed gates flow triggering on a reply to a broadcast-attributed
// conversation: a broadcast's ChatbotOnReply flag decides whether such a
// reply is allowed to start or resume the chatbot, rather than being left
// for a human agent (§3 "Attribution", §4.4). Conversations never
// attributed to a broadcast are unaffected.
func (i *Ingester) chatbotAllowed(ctx context.Context, tenantID string, conv *conversation.Conversation) bool {
	if conv.BroadcastID == "" || i.Broadcasts == nil {
		return true
	}
	b, err := i.Broadcasts.Get(ctx, tenantID, conv.BroadcastID)
	if err != nil {
		return true
	}
	return b.ChatbotOnReply
}

func (i *Ingester) handleStatus(ctx context.Context, t *tenant.Tenant, st cloudapi.StatusUpdate) error {
	to := statusToDomain(st.Status)
	if to == "" {
		return nil
	}
	failReason := ""
	if len(st.Errors) > 0 {
		failReason = st.Errors[0].Message
	}
	_, err := i.Messages.AdvanceStatus(ctx, t.ID, st.ID, to, failReason)
	if err != nil {
		return err
	}

	i.reconcileBroadcast(ctx, t.ID, st.ID, to)

	i.publish(ctx, t.ID, "message.status", map[string]any{
		"provider_message_id": st.ID,
		"status":              string(to),
	})
	return nil
}

// reconcileBroadcast applies a delivery-status webhook to the broadcast
// recipient it belongs to, if any, bumping Delivered/Read as the status
// reaches those milestones (§8 invariant: counters monotone, never
// decrease — AdvanceRecipientStatus rejects an out-of-order or repeated
// transition before any counter moves).
func (i *Ingester) reconcileBroadcast(ctx context.Context, tenantID, providerMessageID string, to conversation.MessageStatus) {
	if i.Broadcasts == nil {
		return
	}
	recipientStatus := broadcastRecipientStatus(to)
	if recipientStatus == "" {
		return
	}
	broadcastID, applied, err := i.Broadcasts.AdvanceRecipientStatus(ctx, tenantID, providerMessageID, recipientStatus)
	if err != nil || !applied {
		return
	}
	delta := broadcast.Counters{}
	switch recipientStatus {
	case broadcast.RecipientDelivered:
		delta.Delivered = 1
	case broadcast.RecipientRead:
		delta.Read = 1
	default:
		return
	}
	_ = i.Broadcasts.IncrementCounters(ctx, tenantID, broadcastID, delta)
}

func broadcastRecipientStatus(s conversation.MessageStatus) broadcast.RecipientStatus {
	switch s {
	case conversation.StatusDelivered:
		return broadcast.RecipientDelivered
	case conversation.StatusRead:
		return broadcast.RecipientRead
	case conversation.StatusFailed:
		return broadcast.RecipientFailed
	default:
		return ""
	}
}

func (i *Ingester) publish(ctx context.Context, tenantID, event string, payload map[string]any) {
	if i.Publisher == nil {
		return
	}
	i.Publisher.Publish(ctx, tenantID, event, payload)
}

func (i *Ingester) forwardExternal(ctx context.Context, t *tenant.Tenant, v cloudapi.ChangeValue) {
	if t.ExternalWebURL == "" || i.HTTPClient == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ExternalWebURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if t.ExternalSecret != "" {
		req.Header.Set("X-Webhook-Secret", t.ExternalSecret)
	}
	resp, err := i.HTTPClient.Do(req)
	if err != nil {
		logrus.WithError(err).WithField("tenant_id", t.ID).Warn("ingest: external forward failed")
		return
	}
	_ = resp.Body.Close()
}

func inboundMessageType(m cloudapi.InboundMessage) conversation.MessageType {
	switch m.Type {
	case "text":
		return conversation.TypeText
	case "image":
		return conversation.TypeImage
	case "video":
		return conversation.TypeVideo
	case "audio":
		return conversation.TypeAudio
	case "document":
		return conversation.TypeDocument
	case "sticker":
		return conversation.TypeSticker
	case "location":
		return conversation.TypeLocation
	case "button":
		return conversation.TypeButton
	case "interactive":
		return conversation.TypeInteractive
	case "order":
		return conversation.TypeOrder
	case "system":
		return conversation.TypeSystem
	default:
		return conversation.TypeUnknown
	}
}

func inboundMedia(m cloudapi.InboundMessage) *cloudapi.InboundMedia {
	switch {
	case m.Image != nil:
		return m.Image
	case m.Video != nil:
		return m.Video
	case m.Audio != nil:
		return m.Audio
	case m.Document != nil:
		return m.Document
	case m.Sticker != nil:
		return m.Sticker
	default:
		return nil
	}
}

func statusToDomain(s string) conversation.MessageStatus {
	switch s {
	case "sent":
		return conversation.StatusSent
	case "delivered":
		return conversation.StatusDelivered
	case "read":
		return conversation.StatusRead
	case "failed":
		return conversation.StatusFailed
	default:
		return ""
	}
}

func parseUnixSeconds(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("ingest: bad timestamp %q: %w", s, err)
	}
	return time.Unix(n, 0).UTC(), nil
}
