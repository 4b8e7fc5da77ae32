// Package cache manages the decision cache over HTTP.
package cache

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/auth"
	decisions "github.com/accessgate/accessgate/internal/cache"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/web/handler"
)

const (
	// InvalidatePath drops cached decisions.
	InvalidatePath = handler.APIPath + "/cache/invalidate"
	// StatsPath returns cache statistics.
	StatsPath = handler.APIPath + "/cache/stats"
)

// InvalidateRequest selects what to drop. At least one field is required;
// every given field is applied.
type InvalidateRequest struct {
	UserID     string `json:"userId" validate:"required_without_all=ResourceID Role"`
	ResourceID string `json:"resourceId"`
	Role       string `json:"role"`
}

// InvalidateResponse reports how many entries were dropped.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

// StatsResponse answers StatsPath.
type StatsResponse struct {
	decisions.Stats
	HitRate float64 `json:"hitRate"`
}

// Service is the cache handler service.
type Service struct {
	handler.Service
	engine    *auth.Engine
	validator handler.XValidator
}

// New creates the cache handler.
func New() *Service {
	return &Service{validator: handler.NewValidator()}
}

// Init registers the cache routes with their permission checks.
func (s *Service) Init(app *fiber.App, cfg *config.Config, engine *auth.Engine) error {
	if app == nil || cfg == nil || engine == nil {
		return errors.New(handler.ErrNilACEMsg)
	}

	s.engine = engine

	app.Post(InvalidatePath,
		auth.RequirePermission(engine, auth.PermCacheManage),
		s.Invalidate,
	)
	app.Get(StatsPath,
		auth.RequirePermission(engine, auth.PermCacheManage),
		s.Stats,
	)

	return nil
}

// Invalidate drops the cached decisions of a user, a resource or a role.
func (s *Service) Invalidate(c fiber.Ctx) error {
	var req InvalidateRequest

	if err := c.Bind().Body(&req); err != nil {
		return handler.BadRequest(c, "invalid request body")
	}

	if errs := s.validator.Validate(req); errs != nil {
		return handler.Invalid(c, errs)
	}

	removed := 0

	if req.UserID != "" {
		removed += s.engine.InvalidateUser(req.UserID)
	}

	if req.ResourceID != "" {
		removed += s.engine.InvalidateResource(req.ResourceID)
	}

	if req.Role != "" {
		removed += s.engine.InvalidateRole(req.Role)
	}

	log.Info().Str("actor_id", handler.Actor(c).ActorID).Str("user_id", req.UserID).
		Str("resource_id", req.ResourceID).Str("role", req.Role).Int("removed", removed).
		Msg("cached decisions invalidated")

	return c.JSON(InvalidateResponse{Removed: removed})
}

// Stats returns the cache counters.
func (s *Service) Stats(c fiber.Ctx) error {
	stats := s.engine.CacheStats()

	return c.JSON(StatsResponse{Stats: stats, HitRate: stats.HitRate()})
}
