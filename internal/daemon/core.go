package daemon

import (
	"fmt"

	"github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/cache"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/grant"
	"github.com/accessgate/accessgate/internal/metrics"
	"github.com/accessgate/accessgate/internal/permission"
	"github.com/accessgate/accessgate/internal/role"
)

// Core holds the engine and the stores it owns.
type Core struct {
	Engine  *auth.Engine
	Grants  *grant.Manager
	Monitor *audit.Monitor
	Cache   *cache.Cache[auth.Decision]
}

// NewCore builds the engine from cfg. Extra monitor options attach alert
// sinks and mirrors.
func NewCore(cfg *config.Config, m *metrics.Metrics, monitorOpts ...audit.Option) (*Core, error) {
	table, err := RoleTable(cfg)
	if err != nil {
		return nil, err
	}

	auditCfg, err := AuditConfig(cfg.Audit)
	if err != nil {
		return nil, err
	}

	grants := grant.NewManager(
		grant.WithRetention(cfg.Grants.Retention),
		grant.WithMetrics(m),
	)

	monitor := audit.NewMonitor(auditCfg, append([]audit.Option{audit.WithMetrics(m)}, monitorOpts...)...)

	decisions, err := cache.New[auth.Decision](cache.Config{
		PrimarySize:   cfg.Cache.PrimarySize,
		PrimaryTTL:    cfg.Cache.PrimaryTTL,
		SecondarySize: cfg.Cache.SecondarySize,
		SecondaryTTL:  cfg.Cache.SecondaryTTL,
	}, cache.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	engine, err := auth.New(
		auth.WithTable(table),
		auth.WithGrantStore(grants),
		auth.WithAuditMonitor(monitor),
		auth.WithCache(decisions),
		auth.WithMetrics(m),
		auth.WithEnvironment(cfg.Environment),
	)
	if err != nil {
		return nil, err
	}

	return &Core{Engine: engine, Grants: grants, Monitor: monitor, Cache: decisions}, nil
}

// RoleTable builds the capability table from cfg.Roles, or the default
// table when none is configured.
func RoleTable(cfg *config.Config) (*role.Table, error) {
	var opts []role.Option
	if cfg.Matching.StrictBareAction {
		opts = append(opts, role.WithMatcher(permission.MatchStrict))
	}

	if len(cfg.Roles) == 0 {
		return role.NewTable(role.DefaultCapabilities(), opts...)
	}

	caps := make(map[role.Role][]string, len(cfg.Roles))

	for name, perms := range cfg.Roles {
		r, err := role.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid role table: %w", err)
		}

		caps[r] = perms
	}

	table, err := role.NewTable(caps, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid role table: %w", err)
	}

	return table, nil
}

// AuditConfig converts the audit section. Zero values keep the monitor's
// defaults.
func AuditConfig(c config.Audit) (audit.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return audit.Config{}, err
	}

	out := audit.Config{
		MaxEvents: c.MaxEvents,
		Retention: c.Retention,
		Anomaly: audit.AnomalyConfig{
			BusinessHoursStart: c.BusinessHoursStart,
			BusinessHoursEnd:   c.BusinessHoursEnd,
			Location:           loc,
			BurstWindow:        c.BurstWindow,
			BurstThreshold:     c.BurstThreshold,
			FanOutWindow:       c.FanOutWindow,
			FanOutThreshold:    c.FanOutThreshold,
		},
		AlertWindow:   c.AlertWindow,
		AlertCooldown: c.AlertCooldown,
	}

	def := audit.DefaultAnomalyConfig()

	if out.Anomaly.BurstWindow <= 0 {
		out.Anomaly.BurstWindow = def.BurstWindow
	}

	if out.Anomaly.BurstThreshold <= 0 {
		out.Anomaly.BurstThreshold = def.BurstThreshold
	}

	if out.Anomaly.FanOutWindow <= 0 {
		out.Anomaly.FanOutWindow = def.FanOutWindow
	}

	if out.Anomaly.FanOutThreshold <= 0 {
		out.Anomaly.FanOutThreshold = def.FanOutThreshold
	}

	if len(c.AlertThresholds) > 0 {
		out.AlertThresholds = make(map[audit.RiskLevel]int, len(c.AlertThresholds))

		for name, n := range c.AlertThresholds {
			level, ok := audit.ParseRiskLevel(name)
			if !ok {
				return audit.Config{}, fmt.Errorf("%w: %q", config.ErrUnknownRiskLevel, name)
			}

			out.AlertThresholds[level] = n
		}
	}

	return out, nil
}

// WarmUpActors converts the configured warm-up actors.
func WarmUpActors(c config.WarmUp) []auth.WarmUpActor {
	out := make([]auth.WarmUpActor, 0, len(c.Actors))
	for _, a := range c.Actors {
		out = append(out, auth.WarmUpActor{ID: a.ID, Role: a.Role, Email: a.Email})
	}

	return out
}
