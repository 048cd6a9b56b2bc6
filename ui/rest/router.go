// Package rest is the internal/external HTTP API surface: webhook
// endpoints for the Cloud API, the external send surface, and the
// operator dashboard's CRUD over contacts, conversations, flows, and
// broadcasts (§6).
package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/dispatch"
	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/ingest"
	"github.com/wa-platform/core/messaging"
	"github.com/wa-platform/core/pkg/workerpool"
	"github.com/wa-platform/core/realtime"
	"github.com/wa-platform/core/ui/rest/middleware"
)

// Handlers wires every domain dependency the REST surface needs. It is
// built once at composition time (cmd) and registered onto a fiber app.
type Handlers struct {
	JWTSecret []byte

	Tenants       tenant.Repository
	Contacts      contact.Repository
	Conversations conversation.ConversationRepository
	Messages      conversation.MessageRepository
	Flows         flow.Repository
	Broadcasts    broadcast.Repository

	Ingester   *ingest.Ingester
	Dispatcher *dispatch.Dispatcher
	Sender     *messaging.Sender
	Pool       *workerpool.Pool
	Hub        *realtime.Hub
}

// Register mounts every route group onto app.
func (h *Handlers) Register(app fiber.Router) {
	app.Get("/webhook/:tenant", h.VerifyWebhook)
	app.Post("/webhook/:tenant", h.ReceiveWebhook)

	app.Get("/health/status", h.HealthStatus)

	integrations := app.Group("/integrations", middleware.APIKeyAuth(h.Tenants))
	integrations.Post("/send", h.IntegrationSend)
	integrations.Post("/send-template", h.IntegrationSendTemplate)
	integrations.Post("/media", h.UploadHeaderMedia)

	api := app.Group("/api", middleware.BearerAuth(h.JWTSecret))

	contacts := api.Group("/contacts")
	contacts.Get("/:id", h.GetContact)
	contacts.Post("/:id", h.UpdateContact)

	conversations := api.Group("/conversations")
	conversations.Get("/", h.ListConversations)
	conversations.Get("/:id", h.GetConversation)
	conversations.Get("/:id/messages", h.ListMessages)
	conversations.Post("/:id/read", h.MarkConversationRead)
	conversations.Post("/:id/assign", h.AssignConversation)
	conversations.Post("/:id/status", h.SetConversationStatus)

	flows := api.Group("/chatbot/flows")
	flows.Get("/", h.ListFlows)
	flows.Post("/", h.CreateFlow)
	flows.Get("/:id", h.GetFlow)
	flows.Put("/:id", h.UpdateFlow)
	flows.Delete("/:id", h.DeleteFlow)

	broadcasts := api.Group("/broadcasts")
	broadcasts.Get("/", h.ListBroadcasts)
	broadcasts.Post("/", h.CreateBroadcast)
	broadcasts.Get("/:id", h.GetBroadcast)
	broadcasts.Post("/:id/start", h.StartBroadcast)
	broadcasts.Post("/:id/cancel", h.CancelBroadcast)
}
