package rest

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/ui/rest/middleware"
)

func parseScheduledAt(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func logBroadcastError(tenantID, broadcastID string, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"tenant_id": tenantID, "broadcast_id": broadcastID,
	}).Error("rest: broadcast start failed")
}

func (h *Handlers) ListBroadcasts(c *fiber.Ctx) error {
	list, err := h.Broadcasts.List(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: list})
}

func (h *Handlers) GetBroadcast(c *fiber.Ctx) error {
	b, err := h.Broadcasts.Get(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: b})
}

// createBroadcastRecipient is one entry of the REST recipient list: the
// contact to send to plus any per-recipient template variables.
type createBroadcastRecipient struct {
	ContactID string            `json:"contact_id"`
	Phone     string            `json:"phone"`
	Variables map[string]string `json:"variables,omitempty"`
}

type createBroadcastRequest struct {
	Name           string                      `json:"name"`
	Template       broadcast.TemplateRef       `json:"template"`
	Recipients     []createBroadcastRecipient  `json:"recipients"`
	ChatbotOnReply bool                        `json:"chatbot_on_reply"`
	ScheduledAt    *string                     `json:"scheduled_at,omitempty"` // RFC3339; presence sets status=scheduled
}

func (h *Handlers) CreateBroadcast(c *fiber.Ctx) error {
	var req createBroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	req.validate(c.UserContext())

	recipients := make([]broadcast.Recipient, len(req.Recipients))
	for i, r := range req.Recipients {
		recipients[i] = broadcast.Recipient{
			ContactID: r.ContactID,
			Phone:     r.Phone,
			Variables: r.Variables,
			Status:    broadcast.RecipientPending,
		}
	}

	b := &broadcast.Broadcast{
		TenantID:       middleware.TenantID(c),
		Name:           req.Name,
		Template:       req.Template,
		Recipients:     recipients,
		ChatbotOnReply: req.ChatbotOnReply,
		Status:         broadcast.StatusPending,
		Counters:       broadcast.Counters{Total: len(recipients)},
	}

	scheduledAt, err := parseScheduledAt(req.ScheduledAt)
	if err != nil {
		panic(apperror.Validation("invalid scheduled_at: " + err.Error()))
	}
	if scheduledAt != nil {
		b.Status = broadcast.StatusScheduled
		b.ScheduledAt = scheduledAt
	}

	created, err := h.Broadcasts.Create(c.UserContext(), b)
	utils.PanicIfNeeded(err)
	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{Status: 201, Code: "SUCCESS", Message: "broadcast created", Results: created})
}

// StartBroadcast runs a pending/scheduled broadcast immediately. The
// dispatcher call blocks for the whole batched run, so the handler hands
// it to a background goroutine and answers once the broadcast has moved
// to processing (§4.4, idempotent start).
func (h *Handlers) StartBroadcast(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	id := c.Params("id")

	go func() {
		// Detached from the request context: the run outlives the HTTP
		// response by design (§4.4 batched, rate-limited fan-out).
		if err := h.Dispatcher.Start(context.Background(), tenantID, id); err != nil {
			logBroadcastError(tenantID, id, err)
		}
	}()

	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "broadcast starting"})
}

func (h *Handlers) CancelBroadcast(c *fiber.Ctx) error {
	err := h.Dispatcher.Cancel(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "broadcast cancelled"})
}
