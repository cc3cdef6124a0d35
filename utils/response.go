package utils

import (
	"github.com/gofiber/fiber/v2"

	"messenger-core/errs"
)

// Success writes the {status, message, data} envelope used by every endpoint.
func Success(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

// Error maps err to its HTTP status and writes the error envelope. Internal
// errors are reported without their cause.
func Error(c *fiber.Ctx, err error) error {
	app := errs.As(err)
	status := errs.HTTPStatus(app)
	message := app.Message
	if app.Code == errs.CodeInternal {
		message = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data": fiber.Map{
			"code":   app.Code,
			"reason": app.Reason,
		},
	})
}
