package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, engine *auth.Engine) error
}
