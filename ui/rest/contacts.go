package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/ui/rest/middleware"
)

// GetContact looks up one contact by id. Contact discovery in this
// platform happens through the conversation inbox (§6); this endpoint
// serves direct lookups once a conversation names its contact id.
func (h *Handlers) GetContact(c *fiber.Ctx) error {
	rec, err := h.Contacts.Get(c.UserContext(), middleware.TenantID(c), c.Params("id"))
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok", Results: rec})
}

type updateContactRequest struct {
	DisplayName *string  `json:"display_name"`
	Email       *string  `json:"email"`
	AddLabels   []string `json:"add_labels"`
}

func (h *Handlers) UpdateContact(c *fiber.Ctx) error {
	var req updateContactRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	rec, err := h.Contacts.Update(c.UserContext(), middleware.TenantID(c), c.Params("id"), contact.UpdateRequest{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		AddLabels:   req.AddLabels,
	})
	utils.PanicIfNeeded(err)
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "contact updated", Results: rec})
}
