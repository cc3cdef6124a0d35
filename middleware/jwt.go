package middleware

import (
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"messenger-core/errs"
	"messenger-core/utils"
)

const userIDKey = "userID"

// JWT verifies the access token from the Authorization header or the token
// cookie. Every failure, malformed tokens included, is a 401.
func JWT(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: "HS512",
			Key:    []byte(secret),
		},
		TokenLookup: "header:Authorization,cookie:token",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return utils.Error(c, errs.ErrUnauthorized)
		},
	})
}

// Identity turns the verified token into the caller's user id. Tokens still
// waiting for the second factor are refused.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return utils.Error(c, errs.ErrUnauthorized)
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.Error(c, errs.ErrUnauthorized)
		}
		meta, err := utils.MetadataFromClaims(claims)
		if err != nil || meta.OTP {
			return utils.Error(c, errs.ErrUnauthorized)
		}
		c.Locals(userIDKey, meta.ID)
		return c.Next()
	}
}

// UserID returns the id stored by Identity.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
