package rest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/conversation"
)

type fakeConversationRepoRest struct {
	byID         map[string]*conversation.Conversation
	lastAssignee string
	lastStatus   conversation.Status
}

func (r *fakeConversationRepoRest) GetOrOpen(ctx context.Context, tenantID, contactID string) (*conversation.Conversation, error) {
	return &conversation.Conversation{ID: "c1", TenantID: tenantID, ContactID: contactID}, nil
}
func (r *fakeConversationRepoRest) Get(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, assert.AnError
	}
	return c, nil
}
func (r *fakeConversationRepoRest) List(ctx context.Context, tenantID string) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out, nil
}
func (r *fakeConversationRepoRest) TouchIncoming(ctx context.Context, tenantID, id, preview string, at time.Time) error {
	return nil
}
func (r *fakeConversationRepoRest) TouchOutgoing(ctx context.Context, tenantID, id, preview string, at time.Time) error {
	return nil
}
func (r *fakeConversationRepoRest) MarkRead(ctx context.Context, tenantID, id string, messageIDs []string) error {
	return nil
}
func (r *fakeConversationRepoRest) AttributeToBroadcast(ctx context.Context, tenantID, id, broadcastID string) error {
	return nil
}
func (r *fakeConversationRepoRest) SetAssignee(ctx context.Context, tenantID, id, agentID string) error {
	r.lastAssignee = agentID
	return nil
}
func (r *fakeConversationRepoRest) SetStatus(ctx context.Context, tenantID, id string, status conversation.Status) error {
	r.lastStatus = status
	return nil
}

func TestGetConversation_ReturnsStoredConversation(t *testing.T) {
	repo := &fakeConversationRepoRest{byID: map[string]*conversation.Conversation{
		"c1": {ID: "c1", TenantID: "t1"},
	}}
	h := &Handlers{Conversations: repo}
	app := newHandlerTestApp()
	app.Use(withTenant("t1"))
	app.Get("/conversations/:id", h.GetConversation)

	resp, err := app.Test(httpGet(t, "/conversations/c1"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetConversationStatus_RejectsUnknownStatusValue(t *testing.T) {
	repo := &fakeConversationRepoRest{byID: map[string]*conversation.Conversation{"c1": {ID: "c1"}}}
	h := &Handlers{Conversations: repo}
	app := newHandlerTestApp()
	app.Use(withTenant("t1"))
	app.Post("/conversations/:id/status", h.SetConversationStatus)

	resp, err := app.Test(httpPost(t, "/conversations/c1/status", []byte(`{"status":"not-a-real-status"}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetConversationStatus_AcceptsEachKnownStatus(t *testing.T) {
	for _, status := range []conversation.Status{conversation.StatusOpen, conversation.StatusPending, conversation.StatusResolved, conversation.StatusClosed} {
		repo := &fakeConversationRepoRest{byID: map[string]*conversation.Conversation{"c1": {ID: "c1"}}}
		h := &Handlers{Conversations: repo}
		app := newHandlerTestApp()
		app.Use(withTenant("t1"))
		app.Post("/conversations/:id/status", h.SetConversationStatus)

		resp, err := app.Test(httpPost(t, "/conversations/c1/status", []byte(`{"status":"`+string(status)+`"}`)))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "status %q should be accepted", status)
	}
}

func TestAssignConversation_RejectsMalformedBody(t *testing.T) {
	repo := &fakeConversationRepoRest{byID: map[string]*conversation.Conversation{"c1": {ID: "c1"}}}
	h := &Handlers{Conversations: repo}
	app := newHandlerTestApp()
	app.Use(withTenant("t1"))
	app.Post("/conversations/:id/assign", h.AssignConversation)

	resp, err := app.Test(httpPost(t, "/conversations/c1/assign", []byte(`{bad`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
