// Package scheduler runs the minute-resolution sweep that promotes due
// scheduled broadcasts and fires due scheduled notifications (§4.4, §3
// "Scheduled notification"). The loop sweeps on a fixed sweepInterval
// timer, with a slower safety ticker as a backstop, and a Valkey lock
// prevents two replicas from double-firing the same sweep.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/infrastructure/valkey"
	"github.com/wa-platform/core/provider/cloudapi"
)

const (
	safetyInterval = 5 * time.Minute
	promoteLockTTL = 55 * time.Second
	sweepInterval  = 1 * time.Minute
)

// Dispatcher is the subset of dispatch.Dispatcher the scheduler needs to
// start a broadcast once it's due.
type Dispatcher interface {
	Start(ctx context.Context, tenantID, broadcastID string) error
}

// Sender is the subset of messaging.Sender the scheduler needs to fire a
// one-off scheduled notification.
type Sender interface {
	SendTemplate(ctx context.Context, tenantID, contactID string, ts cloudapi.TemplateSend) (string, error)
}

// Scheduler sweeps due broadcasts and notifications on a timer, locking
// each sweep through Valkey so only one replica runs it at a time.
type Scheduler struct {
	Broadcasts    broadcast.Repository
	Notifications broadcast.NotificationRepository
	Dispatch      Dispatcher
	Sender        Sender
	Valkey        *valkey.Client

	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start launches the reactive sweep loop in the background; it returns
// immediately and runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runLoop(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	s.sweep(ctx)

	safetyTicker := time.NewTicker(safetyInterval)
	defer safetyTicker.Stop()

	timer := time.NewTimer(sweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-safetyTicker.C:
			if !timer.Stop() {
				<-timer.C
			}
			s.sweep(ctx)
			timer.Reset(sweepInterval)
		case <-timer.C:
			s.sweep(ctx)
			timer.Reset(sweepInterval)
		}
	}
}

// sweep promotes due broadcasts and fires due notifications. It is safe
// to call concurrently from multiple replicas: the Valkey lock ensures
// only one replica's call does the actual work per tick.
func (s *Scheduler) sweep(ctx context.Context) {
	if !s.acquireSweepLock(ctx) {
		return
	}
	s.promoteBroadcasts(ctx)
	s.sendNotifications(ctx)
}

func (s *Scheduler) acquireSweepLock(ctx context.Context) bool {
	if s.Valkey == nil {
		return true // no coordination configured; single-replica deployment
	}
	key := s.Valkey.Key("scheduler", "sweep", "lock")
	cmd := s.Valkey.Inner().B().Set().Key(key).Value("1").Nx().Ex(promoteLockTTL).Build()
	err := s.Valkey.Inner().Do(ctx, cmd).Error()
	if err != nil {
		if valkey.IsNil(err) {
			return false // another replica holds the lock this tick
		}
		logrus.WithError(err).Warn("scheduler: sweep lock error, proceeding unlocked")
	}
	return true
}

func (s *Scheduler) promoteBroadcasts(ctx context.Context) {
	due, err := s.Broadcasts.DuePending(ctx, s.now())
	if err != nil {
		logrus.WithError(err).Error("scheduler: list due broadcasts failed")
		return
	}
	for _, b := range due {
		if err := s.Dispatch.Start(ctx, b.TenantID, b.ID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"tenant_id": b.TenantID, "broadcast_id": b.ID,
			}).Error("scheduler: broadcast start failed")
		}
	}
}

func (s *Scheduler) sendNotifications(ctx context.Context) {
	due, err := s.Notifications.DueForSend(ctx, s.now())
	if err != nil {
		logrus.WithError(err).Error("scheduler: list due notifications failed")
		return
	}
	for _, n := range due {
		_, err := s.Sender.SendTemplate(ctx, n.TenantID, n.ContactID, cloudapi.TemplateSend{
			Name:           n.Template.Name,
			Language:       n.Template.Language,
			HeaderMediaURL: n.Template.HeaderMediaURL,
			BodyParams:     templateParamsInOrder(n.Template.Params),
		})
		if err != nil {
			_ = s.Notifications.MarkFailed(ctx, n.TenantID, n.ID, err.Error())
			logrus.WithError(err).WithFields(logrus.Fields{
				"tenant_id": n.TenantID, "notification_id": n.ID,
			}).Error("scheduler: notification send failed")
			continue
		}
		_ = s.Notifications.MarkSent(ctx, n.TenantID, n.ID, s.now())
	}
}

// templateParamsInOrder flattens a notification's named placeholder map
// into the positional {{1}}, {{2}}, ... order the Cloud API body
// component expects. Params are keyed "1", "2", ... by convention.
func templateParamsInOrder(params map[string]string) []string {
	if len(params) == 0 {
		return nil
	}
	out := make([]string, 0, len(params))
	for i := 1; ; i++ {
		v, ok := params[strconv.Itoa(i)]
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}
