// Package evaluate serves authorization decisions over HTTP.
package evaluate

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/web/handler"
)

const (
	// Path evaluates one action.
	Path = handler.APIPath + "/evaluate"
	// BatchPath evaluates several actions for one context.
	BatchPath = Path + "/batch"
	// EffectivePath lists the permissions a context holds.
	EffectivePath = handler.APIPath + "/effective-permissions"
)

// Request is the body of Path.
type Request struct {
	Context  auth.Context `json:"context"`
	Action   string       `json:"action" validate:"required"`
	Resource string       `json:"resource"`
}

// BatchRequest is the body of BatchPath. At most 100 requests per batch.
type BatchRequest struct {
	Context  auth.Context   `json:"context"`
	Requests []auth.Request `json:"requests" validate:"required,min=1,max=100,dive"`
}

// BatchResponse answers BatchPath, keyed by action or action@resource.
type BatchResponse struct {
	Results map[string]auth.Result `json:"results"`
}

// EffectiveRequest is the body of EffectivePath.
type EffectiveRequest struct {
	Context          auth.Context `json:"context"`
	IncludeDynamic   bool         `json:"includeDynamic"`
	IncludeHierarchy bool         `json:"includeHierarchy"`
}

// EffectiveResponse answers EffectivePath.
type EffectiveResponse struct {
	ActorID     string   `json:"actorId"`
	ActorRole   string   `json:"actorRole"`
	Permissions []string `json:"permissions"`
}

// Service is the evaluation handler service.
type Service struct {
	handler.Service
	engine    *auth.Engine
	validator handler.XValidator
}

// New creates the evaluation handler.
func New() *Service {
	return &Service{validator: handler.NewValidator()}
}

// Init registers the evaluation routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, engine *auth.Engine) error {
	if app == nil || cfg == nil || engine == nil {
		return errors.New(handler.ErrNilACEMsg)
	}

	s.engine = engine

	app.Post(Path, s.Evaluate)
	app.Post(BatchPath, s.EvaluateBatch)
	app.Post(EffectivePath, s.Effective)

	return nil
}

// Evaluate answers 200 with the result when granted and 403 when denied.
func (s *Service) Evaluate(c fiber.Ctx) error {
	var req Request

	if err := c.Bind().Body(&req); err != nil {
		return handler.BadRequest(c, "invalid request body")
	}

	if errs := s.validator.Validate(req); errs != nil {
		return handler.Invalid(c, errs)
	}

	withRequestMetadata(c, &req.Context)

	res := s.engine.Evaluate(&req.Context, req.Action, req.Resource)
	if !res.Granted {
		return c.Status(fiber.StatusForbidden).JSON(res)
	}

	return c.JSON(res)
}

// EvaluateBatch evaluates every request concurrently. It always answers
// 200; each result carries its own decision.
func (s *Service) EvaluateBatch(c fiber.Ctx) error {
	var req BatchRequest

	if err := c.Bind().Body(&req); err != nil {
		return handler.BadRequest(c, "invalid request body")
	}

	if errs := s.validator.Validate(req); errs != nil {
		return handler.Invalid(c, errs)
	}

	withRequestMetadata(c, &req.Context)

	results, err := s.engine.EvaluateMany(c.Context(), &req.Context, req.Requests)
	if err != nil {
		log.Warn().Err(err).Str("actor_id", req.Context.ActorID).Msg("batch evaluation aborted")

		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "evaluation aborted"})
	}

	return c.JSON(BatchResponse{Results: results})
}

// Effective lists the permissions held by the context's role, optionally
// with inherited permissions and dynamic grants.
func (s *Service) Effective(c fiber.Ctx) error {
	var req EffectiveRequest

	if err := c.Bind().Body(&req); err != nil {
		return handler.BadRequest(c, "invalid request body")
	}

	if req.Context.ActorID == "" || req.Context.ActorRole == "" {
		return handler.BadRequest(c, "context.actorId and context.actorRole are required")
	}

	set := s.engine.EffectivePermissions(&req.Context, req.IncludeDynamic, req.IncludeHierarchy)

	return c.JSON(EffectiveResponse{
		ActorID:     req.Context.ActorID,
		ActorRole:   req.Context.ActorRole,
		Permissions: set.Strings(),
	})
}

// withRequestMetadata fills audit metadata the body left out from the request.
func withRequestMetadata(c fiber.Ctx, actx *auth.Context) {
	md := &actx.Metadata

	if md.IP == "" {
		md.IP = c.IP()
	}

	if md.RequestID == "" {
		md.RequestID = c.Get(auth.HeaderRequestID)
	}

	if md.SessionID == "" {
		md.SessionID = c.Get(auth.HeaderSessionID)
	}

	if md.UserAgent == "" {
		md.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
}
