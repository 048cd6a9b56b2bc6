package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/provider/cloudapi"
)

type fakeSchedulerBroadcasts struct {
	due []*broadcast.Broadcast
}

func (f *fakeSchedulerBroadcasts) Create(ctx context.Context, b *broadcast.Broadcast) (*broadcast.Broadcast, error) {
	return b, nil
}
func (f *fakeSchedulerBroadcasts) Get(ctx context.Context, tenantID, id string) (*broadcast.Broadcast, error) {
	return nil, assert.AnError
}
func (f *fakeSchedulerBroadcasts) List(ctx context.Context, tenantID string) ([]*broadcast.Broadcast, error) {
	return nil, nil
}
func (f *fakeSchedulerBroadcasts) TransitionStatus(ctx context.Context, tenantID, id string, to broadcast.Status) (bool, error) {
	return true, nil
}
func (f *fakeSchedulerBroadcasts) IncrementCounters(ctx context.Context, tenantID, id string, delta broadcast.Counters) error {
	return nil
}
func (f *fakeSchedulerBroadcasts) DuePending(ctx context.Context, now time.Time) ([]*broadcast.Broadcast, error) {
	return f.due, nil
}

type fakeSchedulerDispatch struct {
	mu      sync.Mutex
	started []string
	err     error
}

func (d *fakeSchedulerDispatch) Start(ctx context.Context, tenantID, broadcastID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.started = append(d.started, broadcastID)
	return nil
}

type fakeSchedulerNotifications struct {
	due          []*broadcast.ScheduledNotification
	sent, failed []string
}

func (f *fakeSchedulerNotifications) Create(ctx context.Context, n *broadcast.ScheduledNotification) (*broadcast.ScheduledNotification, error) {
	return n, nil
}
func (f *fakeSchedulerNotifications) Get(ctx context.Context, tenantID, id string) (*broadcast.ScheduledNotification, error) {
	return nil, assert.AnError
}
func (f *fakeSchedulerNotifications) Cancel(ctx context.Context, tenantID, id string) (bool, error) {
	return true, nil
}
func (f *fakeSchedulerNotifications) DueForSend(ctx context.Context, now time.Time) ([]*broadcast.ScheduledNotification, error) {
	return f.due, nil
}
func (f *fakeSchedulerNotifications) MarkSent(ctx context.Context, tenantID, id string, at time.Time) error {
	f.sent = append(f.sent, id)
	return nil
}
func (f *fakeSchedulerNotifications) MarkFailed(ctx context.Context, tenantID, id string, reason string) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeSchedulerSender struct {
	fail map[string]bool
}

func (s *fakeSchedulerSender) SendTemplate(ctx context.Context, tenantID, contactID string, ts cloudapi.TemplateSend) (string, error) {
	if s.fail[contactID] {
		return "", assert.AnError
	}
	return "wamid.fake", nil
}

func TestScheduler_SweepPromotesEveryDueBroadcast(t *testing.T) {
	broadcasts := &fakeSchedulerBroadcasts{due: []*broadcast.Broadcast{
		{ID: "b1", TenantID: "t1"},
		{ID: "b2", TenantID: "t1"},
	}}
	dispatch := &fakeSchedulerDispatch{}
	s := &Scheduler{Broadcasts: broadcasts, Dispatch: dispatch, Notifications: &fakeSchedulerNotifications{}, Sender: &fakeSchedulerSender{}}

	s.sweep(context.Background())
	assert.ElementsMatch(t, []string{"b1", "b2"}, dispatch.started)
}

func TestScheduler_SweepContinuesPastAFailedDispatchStart(t *testing.T) {
	broadcasts := &fakeSchedulerBroadcasts{due: []*broadcast.Broadcast{{ID: "b1", TenantID: "t1"}}}
	dispatch := &fakeSchedulerDispatch{err: assert.AnError}
	s := &Scheduler{Broadcasts: broadcasts, Dispatch: dispatch, Notifications: &fakeSchedulerNotifications{}, Sender: &fakeSchedulerSender{}}

	require.NotPanics(t, func() { s.sweep(context.Background()) })
	assert.Empty(t, dispatch.started)
}

func TestScheduler_SweepSendsDueNotificationsAndMarksSentOrFailed(t *testing.T) {
	notifications := &fakeSchedulerNotifications{due: []*broadcast.ScheduledNotification{
		{ID: "n1", TenantID: "t1", ContactID: "c1", Template: broadcast.TemplateRef{Name: "reminder", Language: "en_US"}},
		{ID: "n2", TenantID: "t1", ContactID: "c2", Template: broadcast.TemplateRef{Name: "reminder", Language: "en_US"}},
	}}
	sender := &fakeSchedulerSender{fail: map[string]bool{"c2": true}}
	s := &Scheduler{Broadcasts: &fakeSchedulerBroadcasts{}, Dispatch: &fakeSchedulerDispatch{}, Notifications: notifications, Sender: sender}

	s.sweep(context.Background())
	assert.Equal(t, []string{"n1"}, notifications.sent)
	assert.Equal(t, []string{"n2"}, notifications.failed)
}

func TestTemplateParamsInOrder_StopsAtFirstGap(t *testing.T) {
	assert.Nil(t, templateParamsInOrder(nil))
	assert.Equal(t, []string{"Ana"}, templateParamsInOrder(map[string]string{"1": "Ana", "3": "skipped"}))
}

func TestScheduler_AcquireSweepLockSucceedsWithoutValkeyConfigured(t *testing.T) {
	s := &Scheduler{}
	assert.True(t, s.acquireSweepLock(context.Background()), "a single-replica deployment with no Valkey client should proceed unlocked")
}
