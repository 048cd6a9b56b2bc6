package rest

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/provider/cloudapi"
	"github.com/wa-platform/core/ui/rest/middleware"
)

type sendRequest struct {
	ContactID string `json:"contact_id"`
	Text      string `json:"text"`
}

type sendTemplateRequest struct {
	ContactID      string            `json:"contact_id"`
	Name           string            `json:"name"`
	Language       string            `json:"language"`
	HeaderMediaURL string            `json:"header_media_url,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
}

// IntegrationSend sends a free-form text message on behalf of the
// authenticated tenant (§6 "POST /integrations/send").
func (h *Handlers) IntegrationSend(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	req.validate(c.UserContext())

	id, err := h.Sender.SendText(c.UserContext(), middleware.TenantID(c), req.ContactID, req.Text)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status: 200, Code: "SUCCESS", Message: "message sent",
		Results: map[string]string{"provider_message_id": id},
	})
}

// IntegrationSendTemplate sends an approved template (§6
// "POST /integrations/send-template").
func (h *Handlers) IntegrationSendTemplate(c *fiber.Ctx) error {
	var req sendTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}
	req.validate(c.UserContext())

	ts := cloudapi.TemplateSend{
		Name:           req.Name,
		Language:       req.Language,
		HeaderMediaURL: req.HeaderMediaURL,
		BodyParams:     orderedParams(req.Params),
	}
	id, err := h.Sender.SendTemplate(c.UserContext(), middleware.TenantID(c), req.ContactID, ts)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status: 200, Code: "SUCCESS", Message: "template sent",
		Results: map[string]string{"provider_message_id": id},
	})
}

func orderedParams(params map[string]string) []string {
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
