package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/flow"
)

func TestHandleButton_InterpolatesTextAndSuspends(t *testing.T) {
	sender := &fakeEngineSender{}
	sess := &flow.Session{TenantID: "t1", ContactID: "c1", Variables: flow.Bag{"name": "Ana"}}
	node := &flow.Node{Config: &flow.ButtonConfig{Text: "Hi {{name}}", Buttons: []flow.ButtonOption{{ID: "yes", Title: "Yes"}}}}

	res, err := handleButton(context.Background(), &Engine{Sender: sender}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.True(t, res.Suspend, "a button node always suspends awaiting the user's choice")
}

func TestHandleList_InterpolatesTextAndSuspends(t *testing.T) {
	sender := &fakeEngineSender{}
	sess := &flow.Session{TenantID: "t1", ContactID: "c1", Variables: flow.Bag{"name": "Ana"}}
	node := &flow.Node{Config: &flow.ListConfig{Text: "Hi {{name}}", ButtonText: "Choose"}}

	res, err := handleList(context.Background(), &Engine{Sender: sender}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.True(t, res.Suspend)
}

func TestHandleFlowRef_SendsFlowFormAndSuspends(t *testing.T) {
	sender := &fakeEngineSender{}
	sess := &flow.Session{TenantID: "t1", ContactID: "c1", Variables: flow.Bag{"name": "Ana"}}
	node := &flow.Node{Config: &flow.FlowConfig{FlowMetaID: "123", CTA: "Start", Text: "Hi {{name}}"}}

	res, err := handleFlowRef(context.Background(), &Engine{Sender: sender}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.True(t, res.Suspend, "a flow node always suspends awaiting the form submission")
}

func TestHandleStartTrigger_BranchesByMatchedKeywordIndex(t *testing.T) {
	sess := &flow.Session{Variables: flow.Bag{"last_reply": "support"}}
	node := &flow.Node{Config: &flow.StartTriggerConfig{Keywords: []string{"sales", "support"}}}

	res, err := handleStartTrigger(context.Background(), &Engine{}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.Equal(t, stepResult{Handle: "kw_1"}, res)
	assert.Equal(t, "support", sess.Variables["matched_keyword"])
}

func TestHandleStartTrigger_FallsBackToDefaultHandleOnNoMatch(t *testing.T) {
	sess := &flow.Session{Variables: flow.Bag{"last_reply": "whatever"}}
	node := &flow.Node{Config: &flow.StartTriggerConfig{Keywords: []string{"sales"}}}

	res, err := handleStartTrigger(context.Background(), &Engine{}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.Equal(t, stepResult{Handle: "default"}, res)
}

func TestHandleList_PaginatesBeyondPageSizeWithNextRow(t *testing.T) {
	sender := &fakeEngineSender{}
	sess := &flow.Session{TenantID: "t1", ContactID: "c1", Variables: flow.Bag{}}
	items := make([]any, flow.ListPageSize+2)
	for i := range items {
		items[i] = map[string]any{"id": "row"}
	}
	sess.Variables.Set("items", items)
	node := &flow.Node{Config: &flow.ListConfig{
		Text:             "Pick one",
		ButtonText:       "Choose",
		SourceVar:        "items",
		RowIDTemplate:    "row-{{index}}",
		RowTitleTemplate: "Row {{index}}",
	}}

	res, err := handleList(context.Background(), &Engine{Sender: sender}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.True(t, res.Suspend)
	cached := cachedListRows(sess)
	assert.Len(t, cached, flow.ListPageSize+2)
}

func TestBindListReply_NextAdvancesPageAndResuspends(t *testing.T) {
	sender := &fakeEngineSender{}
	e := &Engine{Sender: sender}
	sess := &flow.Session{TenantID: "t1", ContactID: "c1", Variables: flow.Bag{}}
	rows := make([]flow.ListItem, flow.ListPageSize+1)
	for i := range rows {
		rows[i] = flow.ListItem{ID: "row", Title: "Row"}
	}
	cacheListRows(sess, rows)
	sess.Variables.Set(listPageBagKey, 0)
	cfg := &flow.ListConfig{Text: "Pick one"}

	res, err := e.bindListReply(context.Background(), sess, cfg, InboundEvent{ButtonID: listNextID})
	require.NoError(t, err)
	assert.True(t, res.Suspend)
	assert.Equal(t, 1, bagInt(sess, listPageBagKey))
}

func TestBindListReply_MatchesSelectionAgainstFullRowSet(t *testing.T) {
	sender := &fakeEngineSender{}
	e := &Engine{Sender: sender}
	sess := &flow.Session{TenantID: "t1", ContactID: "c1", Variables: flow.Bag{}}
	cacheListRows(sess, []flow.ListItem{{ID: "opt_a", Title: "Option A"}, {ID: "opt_b", Title: "Option B"}})
	sess.Variables.Set(listPageBagKey, 0)
	cfg := &flow.ListConfig{}

	res, err := e.bindListReply(context.Background(), sess, cfg, InboundEvent{ButtonID: "opt_b"})
	require.NoError(t, err)
	assert.Equal(t, stepResult{Handle: "opt_b"}, res)
}

func TestHandleDelay_IsANoOpPassthrough(t *testing.T) {
	res, err := handleDelay(context.Background(), &Engine{}, &flow.Definition{}, &flow.Session{}, &flow.Node{Config: &flow.DelayConfig{Seconds: 30}})
	require.NoError(t, err)
	assert.Equal(t, stepResult{}, res)
}

func TestHandleSessionConfig_OverridesTimeoutWhenPositive(t *testing.T) {
	sess := &flow.Session{SessionTimeoutSeconds: 0}
	node := &flow.Node{Config: &flow.SessionConfigConfig{SessionTimeoutSeconds: 3600}}

	_, err := handleSessionConfig(context.Background(), &Engine{}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.Equal(t, 3600, sess.SessionTimeoutSeconds)

	node = &flow.Node{Config: &flow.SessionConfigConfig{SessionTimeoutSeconds: 0}}
	_, err = handleSessionConfig(context.Background(), &Engine{}, &flow.Definition{}, sess, node)
	require.NoError(t, err)
	assert.Equal(t, 3600, sess.SessionTimeoutSeconds, "a zero override leaves the existing value untouched")
}
