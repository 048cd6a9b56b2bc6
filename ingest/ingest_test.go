package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/provider/cloudapi"
)

type fakeTenants struct {
	byPhoneNumberID map[string]*tenant.Tenant
	byID            map[string]*tenant.Tenant
}

func (f *fakeTenants) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	return nil, assert.AnError
}
func (f *fakeTenants) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, assert.AnError
	}
	return t, nil
}
func (f *fakeTenants) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*tenant.Tenant, error) {
	t, ok := f.byPhoneNumberID[phoneNumberID]
	if !ok {
		return nil, assert.AnError
	}
	return t, nil
}
func (f *fakeTenants) GetByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	return nil, assert.AnError
}
func (f *fakeTenants) List(ctx context.Context) ([]*tenant.Tenant, error) { return nil, nil }
func (f *fakeTenants) UpdateState(ctx context.Context, id string, state tenant.State) error {
	return nil
}

type fakeIngestContacts struct{}

func (fakeIngestContacts) GetOrCreate(ctx context.Context, tenantID, providerID, profileName string) (*contact.Contact, error) {
	return &contact.Contact{ID: "contact-" + providerID, TenantID: tenantID, ProviderID: providerID, ProfileName: profileName}, nil
}
func (fakeIngestContacts) Get(ctx context.Context, tenantID, id string) (*contact.Contact, error) {
	return &contact.Contact{ID: id, TenantID: tenantID}, nil
}
func (fakeIngestContacts) Update(ctx context.Context, tenantID, id string, req contact.UpdateRequest) (*contact.Contact, error) {
	return &contact.Contact{ID: id, TenantID: tenantID}, nil
}

type fakeIngestConversations struct {
	mu           sync.Mutex
	conv         *conversation.Conversation
	touchedText  string
	touchedAt    time.Time
	attributedTo string
}

func (f *fakeIngestConversations) GetOrOpen(ctx context.Context, tenantID, contactID string) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conv == nil {
		f.conv = &conversation.Conversation{ID: "conv1", TenantID: tenantID, ContactID: contactID}
	}
	return f.conv, nil
}
func (f *fakeIngestConversations) Get(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	return f.conv, nil
}
func (f *fakeIngestConversations) List(ctx context.Context, tenantID string) ([]*conversation.Conversation, error) {
	return nil, nil
}
func (f *fakeIngestConversations) TouchIncoming(ctx context.Context, tenantID, id, preview string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touchedText = preview
	f.touchedAt = at
	return nil
}
func (f *fakeIngestConversations) TouchOutgoing(ctx context.Context, tenantID, id, preview string, at time.Time) error {
	return nil
}
func (f *fakeIngestConversations) MarkRead(ctx context.Context, tenantID, id string, messageIDs []string) error {
	return nil
}
func (f *fakeIngestConversations) AttributeToBroadcast(ctx context.Context, tenantID, id, broadcastID string) error {
	f.attributedTo = broadcastID
	return nil
}
func (f *fakeIngestConversations) SetAssignee(ctx context.Context, tenantID, id, agentID string) error {
	return nil
}
func (f *fakeIngestConversations) SetStatus(ctx context.Context, tenantID, id string, status conversation.Status) error {
	return nil
}

type fakeIngestMessages struct {
	mu       sync.Mutex
	created  []*conversation.Message
	dupe     bool
	advanced []conversation.MessageStatus
}

func (f *fakeIngestMessages) Create(ctx context.Context, msg *conversation.Message) (*conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dupe {
		return nil, conversation.ErrDuplicate
	}
	msg.ID = "msg1"
	f.created = append(f.created, msg)
	return msg, nil
}
func (f *fakeIngestMessages) GetByProviderID(ctx context.Context, tenantID, providerMessageID string) (*conversation.Message, error) {
	return nil, assert.AnError
}
func (f *fakeIngestMessages) AdvanceStatus(ctx context.Context, tenantID, providerMessageID string, to conversation.MessageStatus, failReason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced = append(f.advanced, to)
	return true, nil
}
func (f *fakeIngestMessages) MarkRead(ctx context.Context, tenantID, conversationID string, ids []string) error {
	return nil
}
func (f *fakeIngestMessages) ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]*conversation.Message, error) {
	return nil, nil
}

type fakeIngestBroadcasts struct {
	mu                   sync.Mutex
	byID                 map[string]*broadcast.Broadcast
	unattributedFor      map[string]string // contactID -> broadcastID
	advancedStatus       broadcast.RecipientStatus
	advanceBroadcastID   string
	repliedContactID     string
	incrementedCounters  []broadcast.Counters
}

func (f *fakeIngestBroadcasts) Create(ctx context.Context, b *broadcast.Broadcast) (*broadcast.Broadcast, error) {
	return b, nil
}
func (f *fakeIngestBroadcasts) Get(ctx context.Context, tenantID, id string) (*broadcast.Broadcast, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, assert.AnError
	}
	return b, nil
}
func (f *fakeIngestBroadcasts) List(ctx context.Context, tenantID string) ([]*broadcast.Broadcast, error) {
	return nil, nil
}
func (f *fakeIngestBroadcasts) TransitionStatus(ctx context.Context, tenantID, id string, to broadcast.Status) (bool, error) {
	return true, nil
}
func (f *fakeIngestBroadcasts) IncrementCounters(ctx context.Context, tenantID, id string, delta broadcast.Counters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrementedCounters = append(f.incrementedCounters, delta)
	return nil
}
func (f *fakeIngestBroadcasts) DuePending(ctx context.Context, now time.Time) ([]*broadcast.Broadcast, error) {
	return nil, nil
}
func (f *fakeIngestBroadcasts) RecordRecipientSent(ctx context.Context, tenantID, broadcastID, contactID, providerMessageID string) error {
	return nil
}
func (f *fakeIngestBroadcasts) RecordRecipientFailed(ctx context.Context, tenantID, broadcastID, contactID, reason string) error {
	return nil
}
func (f *fakeIngestBroadcasts) AdvanceRecipientStatus(ctx context.Context, tenantID, providerMessageID string, to broadcast.RecipientStatus) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advancedStatus = to
	if f.advanceBroadcastID == "" {
		return "", false, nil
	}
	return f.advanceBroadcastID, true, nil
}
func (f *fakeIngestBroadcasts) FindUnattributedRecipient(ctx context.Context, tenantID, contactID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	broadcastID, ok := f.unattributedFor[contactID]
	return broadcastID, ok, nil
}
func (f *fakeIngestBroadcasts) MarkRecipientReplied(ctx context.Context, tenantID, broadcastID, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repliedContactID = contactID
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(ctx context.Context, tenantID, event string, payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func envelopeBody(t *testing.T, phoneNumberID string, msgs []cloudapi.InboundMessage, statuses []cloudapi.StatusUpdate) []byte {
	t.Helper()
	env := cloudapi.Envelope{
		Object: "whatsapp_business_account",
		Entry: []cloudapi.Entry{{
			ID: "entry1",
			Changes: []cloudapi.Change{{
				Field: "messages",
				Value: cloudapi.ChangeValue{
					MessagingProduct: "whatsapp",
					Metadata:         cloudapi.Metadata{PhoneNumberID: phoneNumberID},
					Messages:         msgs,
					Statuses:         statuses,
				},
			}},
		}},
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func TestIngester_VerifyHandshakeEchoesChallengeOnMatchingToken(t *testing.T) {
	i := &Ingester{Tenants: &fakeTenants{byID: map[string]*tenant.Tenant{
		"t1": {ID: "t1", VerifySecret: "secret"},
	}}}

	resp, err := i.VerifyHandshake(context.Background(), "t1", "subscribe", "secret", "chal123")
	require.NoError(t, err)
	assert.Equal(t, "chal123", resp)
}

func TestIngester_VerifyHandshakeRejectsWrongToken(t *testing.T) {
	i := &Ingester{Tenants: &fakeTenants{byID: map[string]*tenant.Tenant{
		"t1": {ID: "t1", VerifySecret: "secret"},
	}}}

	_, err := i.VerifyHandshake(context.Background(), "t1", "subscribe", "wrong", "chal123")
	assert.Error(t, err)
}

func TestIngester_HandlePayloadRejectsBadSignatureWhenAppSecretConfigured(t *testing.T) {
	i := &Ingester{AppSecret: "app-secret"}
	body := envelopeBody(t, "123", nil, nil)

	err := i.HandlePayload(context.Background(), body, "sha256=deadbeef")
	assert.Error(t, err)
}

func TestIngester_HandlePayloadSkipsMessagesForUnresolvedTenant(t *testing.T) {
	i := &Ingester{Tenants: &fakeTenants{byPhoneNumberID: map[string]*tenant.Tenant{}}}
	body := envelopeBody(t, "unknown-number", []cloudapi.InboundMessage{{From: "521", ID: "wamid1"}}, nil)

	err := i.HandlePayload(context.Background(), body, "")
	assert.NoError(t, err, "an unresolved tenant is logged and skipped, not a batch failure")
}

func newFullTestIngester() (*Ingester, *fakeIngestMessages, *fakeIngestConversations, *fakePublisher) {
	messages := &fakeIngestMessages{}
	conversations := &fakeIngestConversations{}
	publisher := &fakePublisher{}
	i := &Ingester{
		Tenants: &fakeTenants{byPhoneNumberID: map[string]*tenant.Tenant{
			"1234": {ID: "t1", State: tenant.StateActive, VerifySecret: "secret"},
		}},
		Contacts:      fakeIngestContacts{},
		Conversations: conversations,
		Messages:      messages,
		Broadcasts:    &fakeIngestBroadcasts{byID: map[string]*broadcast.Broadcast{}},
		Publisher:     publisher,
		Now:           func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	return i, messages, conversations, publisher
}

func TestIngester_HandlePayloadCreatesMessageAndPublishesOnNewInbound(t *testing.T) {
	i, messages, conversations, publisher := newFullTestIngester()
	textMsg := cloudapi.InboundMessage{
		From: "521555", ID: "wamid1", Type: "text", Timestamp: "1767225600",
		Text: &struct {
			Body string `json:"body"`
		}{Body: "hola"},
	}
	body := envelopeBody(t, "1234", []cloudapi.InboundMessage{textMsg}, nil)

	err := i.HandlePayload(context.Background(), body, "")
	require.NoError(t, err)

	require.Len(t, messages.created, 1)
	assert.Equal(t, "hola", messages.created[0].Body)
	assert.Equal(t, conversation.TypeText, messages.created[0].Type)
	assert.Equal(t, "hola", conversations.touchedText)
	assert.Contains(t, publisher.events, "message.received")
}

func TestIngester_HandlePayloadSkipsDuplicateProviderMessageIDWithoutError(t *testing.T) {
	i, messages, _, _ := newFullTestIngester()
	messages.dupe = true
	textMsg := cloudapi.InboundMessage{From: "521555", ID: "wamid1", Type: "text", Timestamp: "1767225600",
		Text: &struct {
			Body string `json:"body"`
		}{Body: "hola"}}
	body := envelopeBody(t, "1234", []cloudapi.InboundMessage{textMsg}, nil)

	err := i.HandlePayload(context.Background(), body, "")
	require.NoError(t, err)
}

func TestIngester_HandlePayloadAdvancesMessageStatusAndPublishes(t *testing.T) {
	i, _, _, publisher := newFullTestIngester()
	body := envelopeBody(t, "1234", nil, []cloudapi.StatusUpdate{{ID: "wamid1", Status: "delivered"}})

	err := i.HandlePayload(context.Background(), body, "")
	require.NoError(t, err)
	assert.Contains(t, publisher.events, "message.status")
}

func TestIngester_HandlePayloadAttributesFirstReplyToBroadcast(t *testing.T) {
	i, _, conversations, _ := newFullTestIngester()
	broadcasts := i.Broadcasts.(*fakeIngestBroadcasts)
	broadcasts.unattributedFor = map[string]string{"contact-521555": "b1"}

	textMsg := cloudapi.InboundMessage{From: "521555", ID: "wamid1", Type: "text", Timestamp: "1767225600",
		Text: &struct {
			Body string `json:"body"`
		}{Body: "yes please"}}
	body := envelopeBody(t, "1234", []cloudapi.InboundMessage{textMsg}, nil)

	err := i.HandlePayload(context.Background(), body, "")
	require.NoError(t, err)

	assert.Equal(t, "b1", conversations.attributedTo)
	assert.Equal(t, "contact-521555", broadcasts.repliedContactID)
	require.Len(t, broadcasts.incrementedCounters, 1)
	assert.Equal(t, 1, broadcasts.incrementedCounters[0].Reply)
}

func TestIngester_HandlePayloadSkipsAttributionWhenConversationAlreadyAttributed(t *testing.T) {
	i, _, conversations, _ := newFullTestIngester()
	conversations.conv = &conversation.Conversation{ID: "conv1", TenantID: "t1", ContactID: "contact-521555", BroadcastID: "earlier"}
	broadcasts := i.Broadcasts.(*fakeIngestBroadcasts)
	broadcasts.unattributedFor = map[string]string{"contact-521555": "b1"}

	textMsg := cloudapi.InboundMessage{From: "521555", ID: "wamid1", Type: "text", Timestamp: "1767225600",
		Text: &struct {
			Body string `json:"body"`
		}{Body: "hi again"}}
	body := envelopeBody(t, "1234", []cloudapi.InboundMessage{textMsg}, nil)

	err := i.HandlePayload(context.Background(), body, "")
	require.NoError(t, err)

	assert.Empty(t, broadcasts.repliedContactID, "a conversation already attributed must not be re-attributed")
}

func TestIngester_HandlePayloadReconcilesDeliveredAndReadCountersByProviderMessageID(t *testing.T) {
	i, _, _, _ := newFullTestIngester()
	broadcasts := i.Broadcasts.(*fakeIngestBroadcasts)
	broadcasts.advanceBroadcastID = "b1"

	body := envelopeBody(t, "1234", nil, []cloudapi.StatusUpdate{{ID: "wamid1", Status: "read"}})

	err := i.HandlePayload(context.Background(), body, "")
	require.NoError(t, err)

	assert.Equal(t, broadcast.RecipientRead, broadcasts.advancedStatus)
	require.Len(t, broadcasts.incrementedCounters, 1)
	assert.Equal(t, 1, broadcasts.incrementedCounters[0].Read)
}

func TestIngester_ChatbotAllowedDefaultsTrueForUnattributedConversation(t *testing.T) {
	i := &Ingester{Broadcasts: &fakeIngestBroadcasts{byID: map[string]*broadcast.Broadcast{}}}
	allowed := i.chatbotAllowed(context.Background(), "t1", &conversation.Conversation{ID: "c1"})
	assert.True(t, allowed)
}

func TestIngester_ChatbotAllowedRespectsBroadcastFlagWhenAttributed(t *testing.T) {
	i := &Ingester{Broadcasts: &fakeIngestBroadcasts{byID: map[string]*broadcast.Broadcast{
		"b1": {ID: "b1", ChatbotOnReply: false},
	}}}
	allowed := i.chatbotAllowed(context.Background(), "t1", &conversation.Conversation{ID: "c1", BroadcastID: "b1"})
	assert.False(t, allowed)

	i.Broadcasts = &fakeIngestBroadcasts{byID: map[string]*broadcast.Broadcast{
		"b1": {ID: "b1", ChatbotOnReply: true},
	}}
	allowed = i.chatbotAllowed(context.Background(), "t1", &conversation.Conversation{ID: "c1", BroadcastID: "b1"})
	assert.True(t, allowed)
}
