package middleware

import (
	"strings"

	"github.com/asset-exchange/backend/internal/auth"
	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	CtxIdentity = "identity"
	CtxRole     = "role"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header", "code": "UNAUTHORIZED"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format", "code": "UNAUTHORIZED"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token", "code": "UNAUTHORIZED"})
		}

		// роль пересчитывается из конфига: токен мог быть выдан до смены админов
		c.Locals(CtxIdentity, claims.Identity)
		c.Locals(CtxRole, rbac.RoleFor(claims.Identity, cfg.MarketplaceOwner, cfg.IsAdmin))

		return c.Next()
	}
}

func GetIdentity(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxIdentity).(string)
	return id
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	if role == "" {
		return rbac.RoleMember
	}
	return role
}

// RequirePermission rejects callers whose role lacks perm.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied: " + perm, "code": "FORBIDDEN"})
		}
		return c.Next()
	}
}

// AdminMiddleware requires an admin or the marketplace owner
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetIdentity(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required", "code": "FORBIDDEN"})
		}
		return c.Next()
	}
}
