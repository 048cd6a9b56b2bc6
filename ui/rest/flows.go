package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/ui/rest/middleware"
)

func (h *Handlers) ListFlows(c *fiber.Ctx) error {
	list, err := h.Flows.List(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: list})
}

func (h *Handlers) GetFlow(c *fiber.Ctx) error {
	def, err := h.Flows.Get(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: def})
}

func (h *Handlers) CreateFlow(c *fiber.Ctx) error {
	var def flow.Definition
	if err := c.BodyParser(&def); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	def.TenantID = middleware.TenantID(c)
	if _, ok := def.StartNode(); !ok {
		panic(apperror.Validation("flow must contain a start_trigger node"))
	}

	created, err := h.Flows.Create(c.UserContext(), &def)
	utils.PanicIfNeeded(err)
	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{Status: 201, Code: "SUCCESS", Message: "flow created", Results: created})
}

func (h *Handlers) UpdateFlow(c *fiber.Ctx) error {
	var def flow.Definition
	if err := c.BodyParser(&def); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	def.TenantID = middleware.TenantID(c)
	def.ID = c.Params("id")

	updated, err := h.Flows.Update(c.UserContext(), &def)
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "flow updated", Results: updated})
}

func (h *Handlers) DeleteFlow(c *fiber.Ctx) error {
	err := h.Flows.Delete(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "flow deleted"})
}
