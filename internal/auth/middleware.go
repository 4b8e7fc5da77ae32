package auth

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// Request headers identifying the caller of the HTTP API.
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRole  = "X-Actor-Role"
	HeaderActorEmail = "X-Actor-Email"
	HeaderSessionID  = "X-Session-ID"
	HeaderRequestID  = "X-Request-ID"
	HeaderGeo        = "X-Geo"
)

// localsKey is where RequirePermission stores the caller's Context.
const localsKey = "auth.context"

// ContextFromRequest builds an evaluation Context from the caller headers.
func ContextFromRequest(c fiber.Ctx) *Context {
	return &Context{
		ActorID:    c.Get(HeaderActorID),
		ActorRole:  c.Get(HeaderActorRole),
		ActorEmail: c.Get(HeaderActorEmail),
		Metadata: Metadata{
			IP:        c.IP(),
			SessionID: c.Get(HeaderSessionID),
			RequestID: c.Get(HeaderRequestID),
			UserAgent: c.Get(fiber.HeaderUserAgent),
			Geo:       c.Get(HeaderGeo),
		},
	}
}

// FromLocals returns the Context stored by RequirePermission.
func FromLocals(c fiber.Ctx) (*Context, bool) {
	ctx, ok := c.Locals(localsKey).(*Context)

	return ctx, ok
}

// RequirePermission creates Fiber middleware that lets the request through
// only when the engine grants permission to the caller.
func RequirePermission(engine *Engine, permission string) fiber.Handler {
	return func(c fiber.Ctx) error {
		actx := ContextFromRequest(c)

		if actx.ActorID == "" {
			log.Warn().Str("permission", permission).Str("ip", actx.Metadata.IP).Msg("request without actor id")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + HeaderActorID + " header",
			})
		}

		res := engine.Evaluate(actx, permission, "")
		if !res.Granted {
			log.Warn().Str("actor_id", actx.ActorID).Str("actor_role", actx.ActorRole).Str("permission", permission).
				Str("reason", res.Reason).Msg("actor lacks required permission")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":  "forbidden",
				"reason": res.Reason,
			})
		}

		c.Locals(localsKey, actx)

		return c.Next()
	}
}

// RequireAnyPermission creates Fiber middleware that requires at least one of the given permissions.
func RequireAnyPermission(engine *Engine, permissions ...string) fiber.Handler {
	return func(c fiber.Ctx) error {
		actx := ContextFromRequest(c)

		if actx.ActorID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + HeaderActorID + " header",
			})
		}

		for _, p := range permissions {
			if engine.Evaluate(actx, p, "").Granted {
				c.Locals(localsKey, actx)

				return c.Next()
			}
		}

		log.Warn().Str("actor_id", actx.ActorID).Strs("permissions", permissions).
			Msg("actor lacks required permissions")

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "forbidden",
		})
	}
}
