package rest

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/ui/rest/middleware"
)

func (h *Handlers) ListConversations(c *fiber.Ctx) error {
	list, err := h.Conversations.List(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: list})
}

func (h *Handlers) GetConversation(c *fiber.Ctx) error {
	conv, err := h.Conversations.Get(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: conv})
}

func (h *Handlers) ListMessages(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	list, err := h.Messages.ListByConversation(c.UserContext(), middleware.TenantID(c), c.Params("id"), limit)
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: list})
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func (h *Handlers) MarkConversationRead(c *fiber.Ctx) error {
	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	tenantID := middleware.TenantID(c)
	id := c.Params("id")

	err := h.Messages.MarkRead(c.UserContext(), tenantID, id, req.MessageIDs)
	utils.PanicIfNeeded(err)
	err = h.Conversations.MarkRead(c.UserContext(), tenantID, id, req.MessageIDs)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "marked read"})
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *Handlers) AssignConversation(c *fiber.Ctx) error {
	var req assignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	err := h.Conversations.SetAssignee(c.UserContext(), middleware.TenantID(c), c.Params("id"), req.AgentID)
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "assignee updated"})
}

type statusRequest struct {
	Status conversation.Status `json:"status"`
}

func (h *Handlers) SetConversationStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	switch req.Status {
	case conversation.StatusOpen, conversation.StatusPending, conversation.StatusResolved, conversation.StatusClosed:
	default:
		panic(apperror.Validation("invalid status value"))
	}
	err := h.Conversations.SetStatus(c.UserContext(), middleware.TenantID(c), c.Params("id"), req.Status)
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "status updated"})
}
