package rest

import (
	"bytes"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/provider"
	"github.com/wa-platform/core/ui/rest/middleware"
)

// UploadHeaderMedia accepts a multipart image upload, normalizes it,
// and uploads it through the tenant's Cloud API credentials, returning
// a file handle the caller can pass as a template header's media id
// (§6 "POST /integrations/media").
func (h *Handlers) UploadHeaderMedia(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		panic(apperror.Validation("file is required"))
	}

	f, err := fh.Open()
	if err != nil {
		panic(apperror.Internal("rest: open uploaded file", err))
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		panic(apperror.Internal("rest: read uploaded file", err))
	}

	img, err := provider.DecodeImage(bytes.NewReader(raw))
	utils.PanicIfNeeded(err)

	handle, err := h.Sender.UploadHeaderImage(c.UserContext(), middleware.TenantID(c), fh.Filename, img)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status: 200, Code: "SUCCESS", Message: "media uploaded",
		Results: map[string]string{"handle": handle},
	})
}
