package middleware

import (
	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"messenger-core/errs"
	"messenger-core/utils"
)

var errForbidden = errs.New(errs.CodePermissionDenied, "FORBIDDEN", "Unauthorized")

// RBAC lets the request through when casbin grants the caller the route and method.
func RBAC(enforcer casbin.IEnforcer, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accepted, err := enforcer.Enforce(UserID(c), c.Path(), c.Method())
		if err != nil {
			log.Error("casbin enforce failed", zap.Error(err))
			return utils.Error(c, err)
		}
		if !accepted {
			return utils.Error(c, errForbidden)
		}
		return c.Next()
	}
}
