package interpreter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/repository"
)

type fakeFlowRepo struct {
	defs map[string]*flow.Definition
}

func newFakeFlowRepo(defs ...*flow.Definition) *fakeFlowRepo {
	r := &fakeFlowRepo{defs: map[string]*flow.Definition{}}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

func (r *fakeFlowRepo) Create(ctx context.Context, def *flow.Definition) (*flow.Definition, error) {
	r.defs[def.ID] = def
	return def, nil
}
func (r *fakeFlowRepo) Get(ctx context.Context, tenantID, id string) (*flow.Definition, error) {
	d, ok := r.defs[id]
	if !ok {
		return nil, assert.AnError
	}
	return d, nil
}
func (r *fakeFlowRepo) List(ctx context.Context, tenantID string) ([]*flow.Definition, error) {
	var out []*flow.Definition
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out, nil
}
func (r *fakeFlowRepo) Update(ctx context.Context, def *flow.Definition) (*flow.Definition, error) {
	r.defs[def.ID] = def
	return def, nil
}
func (r *fakeFlowRepo) Delete(ctx context.Context, tenantID, id string) error {
	delete(r.defs, id)
	return nil
}
func (r *fakeFlowRepo) ListEnabledTriggers(ctx context.Context, tenantID string) ([]*flow.Definition, error) {
	var out []*flow.Definition
	for _, d := range r.defs {
		if d.Enabled {
			if _, ok := d.StartNode(); ok {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

type fakeEngineContacts struct{}

func (fakeEngineContacts) GetOrCreate(ctx context.Context, tenantID, providerID, profileName string) (*contact.Contact, error) {
	return &contact.Contact{ID: providerID, TenantID: tenantID}, nil
}
func (fakeEngineContacts) Get(ctx context.Context, tenantID, id string) (*contact.Contact, error) {
	return &contact.Contact{ID: id, TenantID: tenantID}, nil
}
func (fakeEngineContacts) Update(ctx context.Context, tenantID, id string, req contact.UpdateRequest) (*contact.Contact, error) {
	return &contact.Contact{ID: id, TenantID: tenantID}, nil
}

type fakeEngineSender struct {
	sentTexts []string
}

func (s *fakeEngineSender) SendText(ctx context.Context, tenantID, contactID, text string) (string, error) {
	s.sentTexts = append(s.sentTexts, text)
	return "wamid.fake", nil
}
func (s *fakeEngineSender) SendMedia(ctx context.Context, tenantID, contactID string, kind flow.NodeType, url, caption string) (string, error) {
	return "wamid.fake", nil
}
func (s *fakeEngineSender) SendButtons(ctx context.Context, tenantID, contactID string, cfg *flow.ButtonConfig) (string, error) {
	return "wamid.fake", nil
}
func (s *fakeEngineSender) SendList(ctx context.Context, tenantID, contactID string, cfg *flow.ListConfig) (string, error) {
	return "wamid.fake", nil
}
func (s *fakeEngineSender) SendFlow(ctx context.Context, tenantID, contactID string, cfg *flow.FlowConfig) (string, error) {
	return "wamid.fake", nil
}
func (s *fakeEngineSender) SendCatalogue(ctx context.Context, tenantID, contactID string, cfg *flow.CatalogueConfig) (string, error) {
	return "wamid.fake", nil
}
func (s *fakeEngineSender) SendMediaGroup(ctx context.Context, tenantID, contactID string, urls []string, caption string) (string, error) {
	return "wamid.fake", nil
}

func greetingFlow() *flow.Definition {
	return &flow.Definition{
		ID: "greet", TenantID: "t1", Name: "greeting",
		Enabled: true,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeStartTrigger, Config: &flow.StartTriggerConfig{Keywords: []string{"hi"}}},
			{ID: "msg1", Type: flow.NodeMessage, Config: &flow.MessageConfig{Text: "Welcome!"}},
			{ID: "wait1", Type: flow.NodeWait, Config: &flow.WaitConfig{SaveAs: "reply"}},
			{ID: "msg2", Type: flow.NodeMessage, Config: &flow.MessageConfig{Text: "You said {{reply}}"}},
		},
		Edges: []flow.Edge{
			{FromNode: "start", FromHandle: "kw_0", ToNode: "msg1"},
			{FromNode: "msg1", ToNode: "wait1"},
			{FromNode: "wait1", ToNode: "msg2"},
		},
	}
}

func newTestEngine(t *testing.T, defs ...*flow.Definition) (*Engine, *fakeEngineSender) {
	t.Helper()
	sender := &fakeEngineSender{}
	e := &Engine{
		Flows:    newFakeFlowRepo(defs...),
		Sessions: repository.NewMemoryFlowSessionStore(),
		Contacts: fakeEngineContacts{},
		Sender:   sender,
		Now:      func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) },
	}
	return e, sender
}

func TestEngine_RunStartsFlowOnKeywordTriggerAndSuspendsAtWait(t *testing.T) {
	e, sender := newTestEngine(t, greetingFlow())

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "hi"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.AwaitingReply)
	assert.Equal(t, "wait1", sess.CurrentNodeID)
	assert.Equal(t, []string{"Welcome!"}, sender.sentTexts)
}

func TestEngine_RunResumesSuspendedSessionAndInterpolatesReply(t *testing.T) {
	e, sender := newTestEngine(t, greetingFlow())

	_, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "hi"})
	require.NoError(t, err)

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "pizza"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, flow.SessionCompleted, sess.Status, "msg2 has no outgoing edge, so the flow completes")
	assert.Equal(t, []string{"Welcome!", "You said pizza"}, sender.sentTexts)

	_, found, err := e.Sessions.Get(context.Background(), "t1", "c1")
	require.NoError(t, err)
	assert.False(t, found, "a completed session should not remain in the store")
}

func TestEngine_RunReturnsNilSessionWhenNoFlowMatches(t *testing.T) {
	e, _ := newTestEngine(t, greetingFlow())

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "unrelated"})
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestEngine_RunFallsBackToDefaultFlowWhenNoKeywordMatches(t *testing.T) {
	def := &flow.Definition{
		ID: "default", TenantID: "t1", Name: "default", Enabled: true, IsDefault: true,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeStartTrigger},
			{ID: "msg", Type: flow.NodeMessage, Config: &flow.MessageConfig{Text: "fallback"}},
		},
		Edges: []flow.Edge{{FromNode: "start", FromHandle: "default", ToNode: "msg"}},
	}
	e, sender := newTestEngine(t, def)

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "whatever"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, flow.SessionCompleted, sess.Status, "flow completes immediately with no further edges")
	assert.Equal(t, []string{"fallback"}, sender.sentTexts)
}

func TestEngine_RunSuspendsAtStepCapOnCyclicGraph(t *testing.T) {
	def := &flow.Definition{
		ID: "loop", TenantID: "t1", Name: "loop", Enabled: true,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeStartTrigger},
			{ID: "var", Type: flow.NodeVariable, Config: &flow.VariableConfig{Name: "x", Value: "1"}},
		},
		Edges: []flow.Edge{
			{FromNode: "start", FromHandle: "default", ToNode: "var"},
			{FromNode: "var", ToNode: "var"},
		},
	}
	e, _ := newTestEngine(t, def)

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "loop"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.AwaitingReply)
	assert.Equal(t, maxSteps, sess.StepCount)
}

func TestEngine_RunBranchesOnCatchAllKeywordWhenNoOtherFlowMatches(t *testing.T) {
	def := &flow.Definition{
		ID: "catch", TenantID: "t1", Name: "catch", Enabled: true,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeStartTrigger, Config: &flow.StartTriggerConfig{Keywords: []string{"hi", "*"}}},
			{ID: "msg", Type: flow.NodeMessage, Config: &flow.MessageConfig{Text: "caught"}},
		},
		Edges: []flow.Edge{{FromNode: "start", FromHandle: "default", ToNode: "msg"}},
	}
	e, sender := newTestEngine(t, def)

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "anything else"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, []string{"caught"}, sender.sentTexts)
}

func TestEngine_RunExpiresIdleSessionAndRestartsTriggerResolution(t *testing.T) {
	e, sender := newTestEngine(t, greetingFlow())

	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }

	_, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "hi"})
	require.NoError(t, err)

	e.Now = func() time.Time { return now.Add(25 * time.Hour) }

	sess, err := e.Run(context.Background(), "t1", "c1", InboundEvent{Text: "hi"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "wait1", sess.CurrentNodeID, "expiry should restart the greeting flow from the top")
	assert.Equal(t, []string{"Welcome!", "Welcome!"}, sender.sentTexts)
}
