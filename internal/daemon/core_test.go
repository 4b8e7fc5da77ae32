package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/grant"
	"github.com/accessgate/accessgate/internal/metrics"
	"github.com/accessgate/accessgate/internal/permission"
	"github.com/accessgate/accessgate/internal/role"
	"github.com/accessgate/accessgate/internal/sweeper"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Webserver:   config.Webserver{Port: 8080, URL: "http://localhost:8080", ShutDownTime: 1},
		Cache: config.Cache{
			PrimarySize:   10,
			PrimaryTTL:    time.Minute,
			SecondarySize: 100,
			SecondaryTTL:  time.Hour,
		},
		Audit: config.Audit{BusinessHoursStart: 0, BusinessHoursEnd: 0},
	}
}

func TestRoleTable(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
		check   func(t *testing.T, table *role.Table)
	}{
		{
			name: "default table",
			check: func(t *testing.T, table *role.Table) {
				assert.True(t, table.IsGrantedByRole(role.Editor, permission.MustParse("products:create")))
			},
		},
		{
			name: "configured table",
			mutate: func(c *config.Config) {
				c.Roles = map[string][]string{"viewer": {"reports:read"}, "admin": {"*"}}
			},
			check: func(t *testing.T, table *role.Table) {
				assert.True(t, table.IsGrantedByRole(role.Viewer, permission.MustParse("reports:read")))
				assert.False(t, table.IsGrantedByRole(role.Viewer, permission.MustParse("products:read")))
				assert.Empty(t, table.Permissions(role.Editor))
			},
		},
		{
			name:    "unknown role",
			mutate:  func(c *config.Config) { c.Roles = map[string][]string{"owner": {"*"}} },
			wantErr: true,
		},
		{
			name:    "malformed permission",
			mutate:  func(c *config.Config) { c.Roles = map[string][]string{"viewer": {":read"}} },
			wantErr: true,
		},
		{
			name:   "strict matcher",
			mutate: func(c *config.Config) { c.Matching.StrictBareAction = true },
			check: func(t *testing.T, table *role.Table) {
				held := permission.MustParse("products:read")
				// the reverse bare-action rule is off
				assert.False(t, table.Matcher()(held, permission.MustParse("read")))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			table, err := RoleTable(cfg)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			tt.check(t, table)
		})
	}
}

func TestAuditConfig(t *testing.T) {
	out, err := AuditConfig(config.Audit{
		MaxEvents:          50,
		BusinessHoursStart: 8,
		BusinessHoursEnd:   18,
		TimeZone:           "Europe/Berlin",
		AlertThresholds:    map[string]int{"Critical": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, 50, out.MaxEvents)
	assert.Equal(t, "Europe/Berlin", out.Anomaly.Location.String())
	assert.Equal(t, 2, out.AlertThresholds[audit.RiskCritical])
	assert.Equal(t, audit.DefaultAnomalyConfig().BurstThreshold, out.Anomaly.BurstThreshold)

	_, err = AuditConfig(config.Audit{AlertThresholds: map[string]int{"severe": 1}})
	require.ErrorIs(t, err, config.ErrUnknownRiskLevel)
}

func TestNewCore(t *testing.T) {
	core, err := NewCore(testConfig(), metrics.New(nil))
	require.NoError(t, err)

	c := &auth.Context{ActorID: "v1", ActorRole: "viewer"}
	assert.False(t, core.Engine.Evaluate(c, "reports:export", "").Granted)

	_, err = core.Engine.Grant("v1", "reports:export", "a1", "audit season", grant.Options{})
	require.NoError(t, err)

	// the grant store invalidates the cached denial
	assert.True(t, core.Engine.Evaluate(c, "reports:export", "").Granted)
	assert.Equal(t, 1, core.Grants.Stats().InForce)
	assert.Positive(t, core.Monitor.Len())
}

func TestWarmUpActors(t *testing.T) {
	out := WarmUpActors(config.WarmUp{Actors: []config.WarmUpActor{{ID: "w1", Role: "editor", Email: "w1@example.com"}}})
	require.Len(t, out, 1)
	assert.Equal(t, auth.WarmUpActor{ID: "w1", Role: "editor", Email: "w1@example.com"}, out[0])
}

func TestNewSweeper(t *testing.T) {
	m := metrics.New(nil)

	core, err := NewCore(testConfig(), m)
	require.NoError(t, err)

	s, err := newSweeper(config.Sweep{Cache: "@every 1m", Audit: "@every 1h"}, m, core)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sweeper.JobCache, sweeper.JobGrants, sweeper.JobAudit}, s.Jobs())

	removed := s.RunAll()
	assert.Len(t, removed, 3)

	_, err = newSweeper(config.Sweep{Cache: "every minute"}, m, core)
	require.Error(t, err)
}
