// Package grants manages dynamic permission grants over HTTP.
package grants

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/grant"
	"github.com/accessgate/accessgate/internal/web/handler"
)

const (
	// Path is the collection of grants.
	Path = handler.APIPath + "/grants"
	// ItemPath addresses one grant.
	ItemPath = Path + "/:id"
	// StatsPath summarises the grant store.
	StatsPath = Path + "/stats"
	// UserPath addresses every grant of one user.
	UserPath = handler.APIPath + "/users/:userId/grants"
	// RevocationsPath is the revocation history of one user.
	RevocationsPath = handler.APIPath + "/users/:userId/revocations"
)

// CreateRequest is the body of POST Path. The caller becomes grantedBy.
type CreateRequest struct {
	UserID     string            `json:"userId" validate:"required"`
	Permission string            `json:"permission" validate:"required"`
	Reason     string            `json:"reason" validate:"required"`
	ResourceID string            `json:"resourceId"`
	Role       string            `json:"role"`
	ExpiresAt  *time.Time        `json:"expiresAt"`
	Metadata   map[string]string `json:"metadata"`
}

// RevokeRequest is the optional body of the DELETE routes.
type RevokeRequest struct {
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata"`
}

// RevokeAllResult is one entry of the DELETE UserPath response.
type RevokeAllResult struct {
	GrantID    string            `json:"grantId"`
	Revocation *grant.Revocation `json:"revocation,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Service is the grant handler service.
type Service struct {
	handler.Service
	engine    *auth.Engine
	validator handler.XValidator
}

// New creates the grant handler.
func New() *Service {
	return &Service{validator: handler.NewValidator()}
}

// Init registers the grant routes with their permission checks.
func (s *Service) Init(app *fiber.App, cfg *config.Config, engine *auth.Engine) error {
	if app == nil || cfg == nil || engine == nil {
		return errors.New(handler.ErrNilACEMsg)
	}

	s.engine = engine

	app.Post(Path,
		auth.RequirePermission(engine, auth.PermGrantCreate),
		s.Create,
	)
	app.Get(Path,
		auth.RequirePermission(engine, auth.PermGrantRead),
		s.List,
	)
	app.Get(StatsPath,
		auth.RequirePermission(engine, auth.PermGrantRead),
		s.Stats,
	)
	app.Get(ItemPath,
		auth.RequirePermission(engine, auth.PermGrantRead),
		s.Get,
	)
	app.Get(RevocationsPath,
		auth.RequirePermission(engine, auth.PermGrantRead),
		s.Revocations,
	)
	app.Delete(ItemPath,
		auth.RequirePermission(engine, auth.PermGrantRevoke),
		s.Revoke,
	)
	app.Delete(UserPath,
		auth.RequirePermission(engine, auth.PermGrantRevoke),
		s.RevokeAll,
	)

	return nil
}

// Create issues a grant and answers 201 with it.
func (s *Service) Create(c fiber.Ctx) error {
	var req CreateRequest

	if err := c.Bind().Body(&req); err != nil {
		return handler.BadRequest(c, "invalid request body")
	}

	if errs := s.validator.Validate(req); errs != nil {
		return handler.Invalid(c, errs)
	}

	actor := handler.Actor(c)

	g, err := s.engine.Grant(req.UserID, req.Permission, actor.ActorID, req.Reason, grant.Options{
		ResourceID: req.ResourceID,
		Role:       req.Role,
		ExpiresAt:  req.ExpiresAt,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return handler.Error(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(g)
}

// List returns every grant of the userId query parameter, or the in-force
// grants bound to the role or of the permission query parameter. Exactly
// one of them must be given.
func (s *Service) List(c fiber.Ctx) error {
	userID, r, perm := c.Query("userId"), c.Query("role"), c.Query("permission")

	given := 0
	for _, q := range []string{userID, r, perm} {
		if q != "" {
			given++
		}
	}

	if given != 1 {
		return handler.BadRequest(c, "exactly one of the userId, role and permission query parameters is required")
	}

	var (
		list []grant.Grant
		err  error
	)

	switch {
	case userID != "":
		list, err = s.engine.Grants(userID)
	case r != "":
		list, err = s.engine.GrantsByRole(r)
	default:
		list, err = s.engine.GrantsByPermission(perm)
	}

	if err != nil {
		return handler.Error(c, err)
	}

	if list == nil {
		list = []grant.Grant{}
	}

	return c.JSON(list)
}

// Get returns one grant.
func (s *Service) Get(c fiber.Ctx) error {
	g, err := s.engine.LookupGrant(c.Params("id"))
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(g)
}

// Stats answers with the grant store counters.
func (s *Service) Stats(c fiber.Ctx) error {
	stats, err := s.engine.GrantStats()
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(stats)
}

// Revocations returns the revocation history of a user, oldest first.
func (s *Service) Revocations(c fiber.Ctx) error {
	list, err := s.engine.Revocations(c.Params("userId"))
	if err != nil {
		return handler.Error(c, err)
	}

	if list == nil {
		list = []grant.Revocation{}
	}

	return c.JSON(list)
}

// Revoke revokes one grant and answers with its revocation record.
func (s *Service) Revoke(c fiber.Ctx) error {
	req := revokeRequest(c)

	rev, err := s.engine.RevokeWithMetadata(c.Params("id"), handler.Actor(c).ActorID, req.Reason, req.Metadata)
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(rev)
}

// RevokeAll revokes every active grant of a user. Per grant failures are
// reported in the body and don't fail the request.
func (s *Service) RevokeAll(c fiber.Ctx) error {
	req := revokeRequest(c)

	results, err := s.engine.RevokeAll(c.Params("userId"), handler.Actor(c).ActorID, req.Reason)
	if err != nil {
		return handler.Error(c, err)
	}

	out := make([]RevokeAllResult, 0, len(results))
	for _, res := range results {
		entry := RevokeAllResult{GrantID: res.GrantID, Revocation: res.Revocation}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}

		out = append(out, entry)
	}

	return c.JSON(out)
}

// revokeRequest reads the optional body, falling back to the reason query
// parameter.
func revokeRequest(c fiber.Ctx) RevokeRequest {
	var req RevokeRequest

	if len(c.Body()) > 0 {
		_ = c.Bind().JSON(&req)
	}

	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}

	return req
}
