package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"messenger-core/errs"
	"messenger-core/messenger"
	"messenger-core/middleware"
	"messenger-core/utils"
)

type User struct {
	svc *messenger.Service
}

func NewUser(svc *messenger.Service) *User {
	return &User{svc: svc}
}

type pushTokenInput struct {
	Token string `json:"token"`
}

type publicKeyInput struct {
	PublicKey string `json:"publicKey"`
}

func (h *User) Profile(c *fiber.Ctx) error {
	u, err := h.svc.Profile(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "", fiber.Map{
		"id":          u.StringID(),
		"created":     u.CreatedAt.Unix(),
		"username":    u.Username,
		"email":       u.Email,
		"avatar":      u.Avatar,
		"role":        u.Role,
		"publicKey":   u.PublicKey,
		"e2eeEnabled": u.E2EEEnabled,
		"lastSeen":    u.LastSeen,
	})
}

func (h *User) SetPushToken(c *fiber.Ctx) error {
	var in pushTokenInput
	if err := c.BodyParser(&in); err != nil {
		return utils.Error(c, errs.ErrMalformedRequest)
	}
	if err := h.svc.SetPushToken(c.UserContext(), middleware.UserID(c), in.Token); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "Push token saved", nil)
}

func (h *User) SetPublicKey(c *fiber.Ctx) error {
	var in publicKeyInput
	if err := c.BodyParser(&in); err != nil {
		return utils.Error(c, errs.ErrMalformedRequest)
	}
	if err := h.svc.SetPublicKey(c.UserContext(), middleware.UserID(c), in.PublicKey); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "Public key saved", fiber.Map{"e2eeEnabled": true})
}

func (h *User) Block(c *fiber.Ctx) error {
	if err := h.svc.Block(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "User blocked", nil)
}

func (h *User) Unblock(c *fiber.Ctx) error {
	if err := h.svc.Unblock(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "User unblocked", nil)
}

// Status reports presence for ?ids=a,b,c.
func (h *User) Status(c *fiber.Ctx) error {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	status, err := h.svc.Status(c.UserContext(), ids)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "", status)
}
