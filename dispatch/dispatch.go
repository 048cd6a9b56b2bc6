// Package dispatch runs broadcast sends: batched, rate-limited template
// fan-out to a broadcast's recipient list, with idempotent start/cancel
// and live counter updates as sends complete (§4.4).
package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/provider/cloudapi"
)

const (
	batchSize      = 50
	interBatchWait = 5 * time.Second
)

// Sender is the subset of messaging.Sender the dispatcher needs.
type Sender interface {
	SendTemplate(ctx context.Context, tenantID, contactID string, ts cloudapi.TemplateSend) (string, error)
}

// Dispatcher runs one broadcast at a time to completion per call to Start;
// the caller (scheduler or REST handler) decides whether to run it inline
// or in a background goroutine.
type Dispatcher struct {
	Broadcasts broadcast.Repository
	Sender     Sender
	Clock      func() time.Time

	BatchSize      int
	InterBatchWait time.Duration
}

func (d *Dispatcher) clock() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return batchSize
}

func (d *Dispatcher) interBatchWait() time.Duration {
	if d.InterBatchWait > 0 {
		return d.InterBatchWait
	}
	return interBatchWait
}

// Start transitions a broadcast to processing and runs it to completion.
// Calling Start on an already-terminal or already-processing broadcast is
// a no-op (§8 "idempotent start").
func (d *Dispatcher) Start(ctx context.Context, tenantID, broadcastID string) error {
	b, err := d.Broadcasts.Get(ctx, tenantID, broadcastID)
	if err != nil {
		return err
	}
	if b.Status.Terminal() || b.Status == broadcast.StatusProcessing {
		return nil
	}

	moved, err := d.Broadcasts.TransitionStatus(ctx, tenantID, broadcastID, broadcast.StatusProcessing)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	return d.run(ctx, b)
}

// Cancel stops a broadcast before or during its run. Already-terminal
// broadcasts are left untouched (§8 "idempotent cancel").
func (d *Dispatcher) Cancel(ctx context.Context, tenantID, broadcastID string) error {
	_, err := d.Broadcasts.TransitionStatus(ctx, tenantID, broadcastID, broadcast.StatusCancelled)
	return err
}

func (d *Dispatcher) run(ctx context.Context, b *broadcast.Broadcast) error {
	log := logrus.WithFields(logrus.Fields{"tenant_id": b.TenantID, "broadcast_id": b.ID})
	log.Info("dispatch: broadcast started")

	recipients := b.Recipients
	for start := 0; start < len(recipients); start += d.batchSize() {
		if d.cancelled(ctx, b.TenantID, b.ID) {
			log.Info("dispatch: broadcast cancelled mid-run")
			return nil
		}

		end := start + d.batchSize()
		if end > len(recipients) {
			end = len(recipients)
		}
		d.sendBatch(ctx, b, recipients[start:end])

		if end < len(recipients) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.interBatchWait()):
			}
		}
	}

	if d.cancelled(ctx, b.TenantID, b.ID) {
		return nil
	}
	_, err := d.Broadcasts.TransitionStatus(ctx, b.TenantID, b.ID, broadcast.StatusCompleted)
	log.Info("dispatch: broadcast completed")
	return err
}

func (d *Dispatcher) cancelled(ctx context.Context, tenantID, broadcastID string) bool {
	b, err := d.Broadcasts.Get(ctx, tenantID, broadcastID)
	if err != nil {
		return false
	}
	return b.Status == broadcast.StatusCancelled
}

func (d *Dispatcher) sendBatch(ctx context.Context, b *broadcast.Broadcast, recipients []broadcast.Recipient) {
	var mu sync.Mutex
	var sent, failed int

	var wg sync.WaitGroup
	for _, rec := range recipients {
		wg.Add(1)
		go func(rec broadcast.Recipient) {
			defer wg.Done()
			ts := cloudapi.TemplateSend{
				Name:           b.Template.Name,
				Language:       b.Template.Language,
				HeaderMediaURL: b.Template.HeaderMediaURL,
				BodyParams:     templateParamsInOrder(b.Template.Params, rec.Variables),
			}
			id, err := d.Sender.SendTemplate(ctx, b.TenantID, rec.ContactID, ts)

			mu.Lock()
			if err != nil {
				failed++
			} else {
				sent++
			}
			mu.Unlock()

			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"tenant_id": b.TenantID, "broadcast_id": b.ID, "contact_id": rec.ContactID,
				}).Warn("dispatch: template send failed")
				_ = d.Broadcasts.RecordRecipientFailed(ctx, b.TenantID, b.ID, rec.ContactID, err.Error())
				return
			}
			_ = d.Broadcasts.RecordRecipientSent(ctx, b.TenantID, b.ID, rec.ContactID, id)
		}(rec)
	}
	wg.Wait()

	if sent > 0 || failed > 0 {
		_ = d.Broadcasts.IncrementCounters(ctx, b.TenantID, b.ID, broadcast.Counters{Sent: sent, Failed: failed})
	}
}

// templateParamsInOrder flattens a broadcast's shared placeholder map,
// overlaid with a recipient's own variables, into the positional {{1}},
// {{2}}, ... order the Cloud API body component expects. Params are keyed
// "1", "2", ... by convention.
func templateParamsInOrder(shared, recipient map[string]string) []string {
	merged := make(map[string]string, len(shared)+len(recipient))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range recipient {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	out := make([]string, 0, len(merged))
	for i := 1; ; i++ {
		v, ok := merged[strconv.Itoa(i)]
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}
