package rest

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/pkg/workerpool"
)

// VerifyWebhook answers the Cloud API's GET subscription handshake
// (§6 "GET /webhook[/{tenant}]").
func (h *Handlers) VerifyWebhook(c *fiber.Ctx) error {
	tenantID := c.Params("tenant")
	resp, err := h.Ingester.VerifyHandshake(c.UserContext(),
		tenantID,
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		return c.SendStatus(fiber.StatusForbidden)
	}
	return c.SendString(resp)
}

// ReceiveWebhook accepts a Cloud API delivery, routes it to a worker
// shard keyed by (tenant, best-effort contact hint), and always answers
// 200 to the provider regardless of internal outcome (§5 cancellation,
// §7 "Webhook POSTs never return non-200").
func (h *Handlers) ReceiveWebhook(c *fiber.Ctx) error {
	tenantID := c.Params("tenant")
	body := append([]byte(nil), c.Body()...)
	signature := c.Get("X-Hub-Signature-256")

	// Shard by tenant only: a payload can batch several contacts' events,
	// and per-contact serialization is enforced downstream by the flow
	// session store's lock (§5), not by this queue.
	dispatched := false
	if h.Pool != nil {
		dispatched = h.Pool.TryDispatch(workerpool.Job{
			TenantID: tenantID,
			Handler: func(ctx context.Context) error {
				return h.Ingester.HandlePayload(ctx, body, signature)
			},
		})
	}
	if !dispatched {
		if err := h.Ingester.HandlePayload(c.UserContext(), body, signature); err != nil {
			logrus.WithError(err).WithField("tenant_id", tenantID).Warn("rest: webhook processing failed")
		}
	}
	return c.SendStatus(fiber.StatusOK)
}
