package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
)

const operatorKeyHeader = "X-Operator-Key"

// OperatorAuth admits back-office callers presenting the shared operator key
// in the X-Operator-Key header. An empty key admits nobody.
func OperatorAuth(key string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:" + operatorKeyHeader,
		Validator: func(c *fiber.Ctx, presented string) (bool, error) {
			if key == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				return false, keyauth.ErrMissingOrMalformedAPIKey
			}
			c.Locals("operator", true)
			return true, nil
		},
	})
}
