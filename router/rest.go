package router

import (
	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"messenger-core/controller"
	"messenger-core/middleware"
)

type Handlers struct {
	Messenger *controller.Messenger
	User      *controller.User
	Admin     *controller.Admin
}

func Rest(app *fiber.App, h Handlers, secret string, enforcer casbin.IEnforcer, log *zap.Logger) {
	api := app.Group("/v1", logger.New())
	auth := []fiber.Handler{middleware.JWT(secret), middleware.Identity()}

	// Messages. Fixed paths are registered before the parameterised ones.
	messages := api.Group("/messages", auth...)
	messages.Get("/conversations", h.Messenger.Conversations)
	messages.Post("/voice", h.Messenger.SendVoice)
	messages.Delete("/conversation/:otherUserId", h.Messenger.DeleteConversation)
	messages.Get("/:otherUserId", h.Messenger.History)
	messages.Post("", h.Messenger.Send)
	messages.Delete("/:messageId", h.Messenger.Delete)

	// Users
	users := api.Group("/users", auth...)
	users.Get("/profile", h.User.Profile)
	users.Get("/status", h.User.Status)
	users.Put("/push-token", h.User.SetPushToken)
	users.Put("/public-key", h.User.SetPublicKey)
	users.Post("/:id/block", h.User.Block)
	users.Delete("/:id/block", h.User.Unblock)

	// Admin
	admin := api.Group("/admin", append(auth, middleware.RBAC(enforcer, log))...)
	admin.Get("/presence", h.Admin.Presence)
}
