// Package requestid makes sure every request carries an X-Request-ID so
// access log lines and audit events can be correlated.
package requestid

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// New returns middleware that keeps a caller supplied X-Request-ID and
// generates one otherwise. The id is echoed on the response.
func New() fiber.Handler {
	return func(c fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
			c.Request().Header.Set(fiber.HeaderXRequestID, id)
		}

		c.Set(fiber.HeaderXRequestID, id)

		return c.Next()
	}
}
