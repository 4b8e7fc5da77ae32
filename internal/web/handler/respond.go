package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/grant"
)

// BadRequest answers 400 with a message.
func BadRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// Invalid answers 400 with the failed fields.
func Invalid(c fiber.Ctx, errs []ErrorResponse) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"fields": errs,
	})
}

// Error maps a domain error to its status: inactive or duplicate grant 409,
// validation 400, not found 404, unsupported export format 400, missing
// grant store 503 and anything else 500.
func Error(c fiber.Ctx, err error) error {
	var ve *grant.ValidationError

	switch {
	case errors.Is(err, grant.ErrGrantInactive), errors.Is(err, grant.ErrDuplicateGrant):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": []ErrorResponse{{FailedField: ve.Field, Tag: ve.Reason}},
		})
	case errors.Is(err, grant.ErrGrantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, audit.ErrUnsupportedFormat):
		return BadRequest(c, err.Error())
	case errors.Is(err, auth.ErrGrantStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// Actor returns the caller stored by auth.RequirePermission. Routes
// without that middleware get the caller from the request headers.
func Actor(c fiber.Ctx) *auth.Context {
	if actx, ok := auth.FromLocals(c); ok {
		return actx
	}

	return auth.ContextFromRequest(c)
}
