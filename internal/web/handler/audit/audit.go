// Package audit exposes the audit trail over HTTP.
package audit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	trail "github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/web/handler"
)

const (
	// EventsPath queries audit events.
	EventsPath = handler.APIPath + "/audit/events"
	// StatsPath returns audit statistics.
	StatsPath = handler.APIPath + "/audit/stats"
	// ExportPath exports audit events.
	ExportPath = handler.APIPath + "/audit/export"

	// defaultLimit applies to EventsPath when no limit is given.
	defaultLimit = 100
)

// EventsResponse answers EventsPath.
type EventsResponse struct {
	Count  int           `json:"count"`
	Events []trail.Event `json:"events"`
}

// Service is the audit handler service.
type Service struct {
	handler.Service
	engine *auth.Engine
}

// New creates the audit handler.
func New() *Service {
	return &Service{}
}

// Init registers the audit routes with their permission checks.
func (s *Service) Init(app *fiber.App, cfg *config.Config, engine *auth.Engine) error {
	if app == nil || cfg == nil || engine == nil {
		return errors.New(handler.ErrNilACEMsg)
	}

	s.engine = engine

	app.Get(EventsPath,
		auth.RequirePermission(engine, auth.PermAuditRead),
		s.Events,
	)
	app.Get(StatsPath,
		auth.RequirePermission(engine, auth.PermAuditRead),
		s.Stats,
	)
	app.Get(ExportPath,
		auth.RequirePermission(engine, auth.PermAuditExport),
		s.Export,
	)

	return nil
}

// Events returns the events matching the query filters, newest first.
func (s *Service) Events(c fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return handler.BadRequest(c, err.Error())
	}

	if f.Limit == 0 {
		f.Limit = defaultLimit
	}

	events := s.engine.AuditQuery(f)
	if events == nil {
		events = []trail.Event{}
	}

	return c.JSON(EventsResponse{Count: len(events), Events: events})
}

// Stats returns the aggregate view of the audit trail.
func (s *Service) Stats(c fiber.Ctx) error {
	return c.JSON(s.engine.AuditStatistics())
}

// Export encodes the matching events in the format query parameter,
// json by default.
func (s *Service) Export(c fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return handler.BadRequest(c, err.Error())
	}

	format, err := trail.ParseFormat(c.Query("format", string(trail.FormatJSON)))
	if err != nil {
		return handler.Error(c, err)
	}

	body, err := s.engine.AuditExport(format, trail.ExportOptions{
		Filter:          f,
		IncludeMetadata: c.Query("metadata") == "true",
	})
	if err != nil {
		return handler.Error(c, err)
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="audit-%s.%s"`, time.Now().UTC().Format("20060102T150405Z"), format))

	return c.Send(body)
}

// parseFilter reads the audit filter from the query string. Times are
// RFC 3339, types is a comma separated list.
func parseFilter(c fiber.Ctx) (trail.Filter, error) {
	f := trail.Filter{
		ActorID:    c.Query("actorId"),
		Action:     c.Query("action"),
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resourceId"),
		IP:         c.Query("ip"),
	}

	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, trail.EventType(t))
			}
		}
	}

	if raw := c.Query("minRisk"); raw != "" {
		level, ok := trail.ParseRiskLevel(raw)
		if !ok {
			return f, fmt.Errorf("unknown risk level %q", raw)
		}

		f.MinRisk = level
	}

	if raw := c.Query("success"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid success %q", raw)
		}

		f.Success = &b
	}

	var err error

	if f.Since, err = parseTime(c.Query("since")); err != nil {
		return f, fmt.Errorf("invalid since: %w", err)
	}

	if f.Until, err = parseTime(c.Query("until")); err != nil {
		return f, fmt.Errorf("invalid until: %w", err)
	}

	if f.Offset, err = parseCount(c.Query("offset")); err != nil {
		return f, fmt.Errorf("invalid offset: %w", err)
	}

	if f.Limit, err = parseCount(c.Query("limit")); err != nil {
		return f, fmt.Errorf("invalid limit: %w", err)
	}

	return f, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, raw)
}

func parseCount(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, errors.New("must not be negative")
	}

	return n, nil
}
