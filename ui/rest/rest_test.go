package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/ui/rest/middleware"
)

// withTenant injects a fixed tenant id into fiber locals the way
// middleware.BearerAuth/APIKeyAuth would, letting handler tests bypass
// real token verification and focus on the handler body.
func withTenant(tenantID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.TenantIDKey, tenantID)
		return c.Next()
	}
}

func newHandlerTestApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	return app
}
