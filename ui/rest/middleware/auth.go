package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/pkg/auth"
)

// TenantIDKey and UserIDKey are the fiber locals set by BearerAuth/APIKeyAuth.
const (
	TenantIDKey = "tenant_id"
	UserIDKey   = "user_id"
)

// BearerAuth validates the dashboard operator's JWT and makes the
// caller's tenant id available to downstream handlers via fiber locals,
// matching the internal API's bearer-token requirement (§6).
func BearerAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			panic(apperror.Auth("missing bearer token"))
		}
		claims, err := auth.ValidateToken(secret, tokenString)
		if err != nil {
			panic(apperror.Auth("invalid bearer token: " + err.Error()))
		}
		c.Locals(TenantIDKey, claims.TenantID)
		c.Locals(UserIDKey, claims.UserID)
		return c.Next()
	}
}

// APIKeyAuth resolves the tenant from the X-API-Key header, for the
// external send surface (§6 "API-key authenticated").
func APIKeyAuth(tenants tenant.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			panic(apperror.Auth("missing X-API-Key header"))
		}
		t, err := tenants.GetByAPIKey(c.UserContext(), key)
		if err != nil {
			panic(apperror.Auth("invalid API key"))
		}
		if !t.Active() {
			panic(apperror.TenantClosed("tenant is not active"))
		}
		c.Locals(TenantIDKey, t.ID)
		return c.Next()
	}
}

// TenantID reads the authenticated tenant id set by BearerAuth/APIKeyAuth.
func TenantID(c *fiber.Ctx) string {
	id, _ := c.Locals(TenantIDKey).(string)
	return id
}

// UserContext is a small convenience matching the teacher's
// c.UserContext() call sites; kept here so handlers never import fiber's
// context plumbing directly.
func UserContext(c *fiber.Ctx) context.Context {
	return c.UserContext()
}
