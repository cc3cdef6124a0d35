package controller

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"messenger-core/messenger"
	"messenger-core/utils"
)

type Admin struct {
	svc *messenger.Service
}

func NewAdmin(svc *messenger.Service) *Admin {
	return &Admin{svc: svc}
}

// Presence lists every connected user.
func (h *Admin) Presence(c *fiber.Ctx) error {
	online, err := h.svc.Online(c.UserContext())
	if err != nil {
		return utils.Error(c, err)
	}
	if online == nil {
		online = []string{}
	}
	sort.Strings(online)
	return utils.Success(c, fiber.StatusOK, "", fiber.Map{
		"count": len(online),
		"users": online,
	})
}
