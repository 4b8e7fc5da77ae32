package auth

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/accessgate/accessgate/internal/audit"
	"github.com/accessgate/accessgate/internal/cache"
	"github.com/accessgate/accessgate/internal/clock"
	"github.com/accessgate/accessgate/internal/grant"
	"github.com/accessgate/accessgate/internal/metrics"
	"github.com/accessgate/accessgate/internal/permission"
	"github.com/accessgate/accessgate/internal/role"
)

// GrantStore holds dynamic grants. *grant.Manager implements it.
type GrantStore interface {
	Grant(userID, perm, grantedBy, reason string, opts grant.Options) (grant.Grant, error)
	RevokeWithMetadata(grantID, revokedBy, reason string, metadata map[string]string) (grant.Revocation, error)
	RevokeAll(userID, revokedBy, reason string) []grant.RevokeResult
	Get(id string) (grant.Grant, error)
	ListForUser(userID string, scope *grant.Scope) []grant.Grant
	ListAll(userID string) []grant.Grant
	ListByRole(r role.Role) []grant.Grant
	ListByPermission(perm string) []grant.Grant
	Revocations(userID string) []grant.Revocation
	Stats() grant.Stats
	OnChange(l grant.Listener)
}

// Environments in which WarmUp does nothing.
var noWarmUpEnvironments = map[string]struct{}{
	"test":      {},
	"ephemeral": {},
}

// Engine evaluates authorization requests. Stages run in a fixed order and
// the first one that grants ends the evaluation: cache, context rules,
// role, dynamic grants, hierarchy, admin override. Anything left is denied.
type Engine struct {
	table   *role.Table
	grants  GrantStore
	cache   *cache.Cache[Decision]
	audit   *audit.Monitor
	clock   clock.Clock
	metrics *metrics.Metrics

	environment string

	// generations counts invalidations per user. A decision computed across
	// one is not kept in the cache.
	genMu       sync.Mutex
	generations map[string]uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTable sets the role capability table.
func WithTable(t *role.Table) Option {
	return func(e *Engine) {
		if t != nil {
			e.table = t
		}
	}
}

// WithGrantStore sets the dynamic grant store. Without one, no dynamic
// grants apply and grant operations fail with ErrGrantStoreUnavailable.
func WithGrantStore(s GrantStore) Option {
	return func(e *Engine) {
		if m, ok := s.(*grant.Manager); ok && m == nil {
			s = nil
		}

		e.grants = s
	}
}

// WithCache sets the decision cache.
func WithCache(c *cache.Cache[Decision]) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithAuditMonitor sets the audit monitor.
func WithAuditMonitor(m *audit.Monitor) Option {
	return func(e *Engine) {
		if m != nil {
			e.audit = m
		}
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithMetrics sets the collectors the engine reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEnvironment names the deployment environment. WarmUp is skipped in
// the "test" and "ephemeral" environments.
func WithEnvironment(env string) Option {
	return func(e *Engine) {
		e.environment = strings.ToLower(strings.TrimSpace(env))
	}
}

// New builds an Engine. Missing collaborators get in-memory defaults,
// except the grant store which must be supplied with WithGrantStore.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{clock: clock.Real(), generations: make(map[string]uint64)}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}

	if e.table == nil {
		e.table = role.MustDefault()
	}

	if e.cache == nil {
		c, err := cache.New[Decision](cache.DefaultConfig(), cache.WithClock(e.clock), cache.WithMetrics(e.metrics))
		if err != nil {
			return nil, fmt.Errorf("failed to create decision cache: %w", err)
		}

		e.cache = c
	}

	if e.audit == nil {
		e.audit = audit.NewMonitor(audit.DefaultConfig(), audit.WithClock(e.clock), audit.WithMetrics(e.metrics))
	}

	if e.grants != nil {
		e.grants.OnChange(func(userID string) {
			e.InvalidateUser(userID)
		})
	}

	return e, nil
}

// Evaluate decides whether c may perform action, optionally on resource.
// It never fails: problems with the input are reported as a denial. A nil
// c is a programming error and panics.
func (e *Engine) Evaluate(c *Context, action, resource string) Result {
	return e.evaluate(c, action, resource, true)
}

func (e *Engine) evaluate(c *Context, action, resource string, record bool) Result {
	if c == nil {
		panic("auth: Evaluate called with a nil Context")
	}

	start := time.Now()

	if res, ok := validateInput(c, action); !ok {
		res.Elapsed = time.Since(start)

		if record {
			e.record(c, action, resource, res)
		}

		return res
	}

	requested, err := requestedPermission(action, c.ResourceType)
	if err != nil {
		res := Result{Decision: Decision{
			Reason: fmt.Sprintf("malformed action %q: %v", action, err),
			Source: SourceDenied,
		}}
		res.Elapsed = time.Since(start)

		if record {
			e.record(c, action, resource, res)
		}

		return res
	}

	resourceID := resource
	if resourceID == "" {
		resourceID = c.ResourceID
	}

	key := cacheKey(c, requested, resourceID)

	if d, ok := e.cache.Get(key); ok {
		res := Result{Decision: d, Cached: true, Elapsed: time.Since(start)}
		e.observe(res)

		if record {
			e.record(c, requested.String(), resourceID, res)
		}

		return res
	}

	gen := e.generation(c.ActorID)

	actorRole, _ := role.Parse(c.ActorRole)
	d, expiresAt := e.decide(c, actorRole, requested, resourceID)

	e.cache.Set(key, d, cache.SetOptions{
		Priority:  cache.DerivePriority(actorRole == role.Admin, requested.String(), d.Granted),
		Tags:      cacheTags(c, requested, resourceID),
		ExpiresAt: expiresAt,
	})

	// The user was invalidated while deciding, possibly before the Set above.
	if e.generation(c.ActorID) != gen {
		e.cache.Delete(key)
	}

	res := Result{Decision: d, Elapsed: time.Since(start)}
	e.observe(res)

	if record {
		e.record(c, requested.String(), resourceID, res)
	}

	return res
}

// validateInput checks the minimum inputs.
func validateInput(c *Context, action string) (Result, bool) {
	var reason string

	switch {
	case strings.TrimSpace(c.ActorID) == "":
		reason = "actor id is required"
	case strings.TrimSpace(c.ActorRole) == "":
		reason = "actor role is required"
	case strings.TrimSpace(action) == "":
		reason = "action is required"
	default:
		return Result{}, true
	}

	return Result{Decision: Decision{Reason: reason, Source: SourceDenied}}, false
}

// decide runs the evaluation stages. The returned time, when set, is the
// expiry of the dynamic grant the decision rests on.
func (e *Engine) decide(c *Context, r role.Role, p permission.Permission, resourceID string) (Decision, *time.Time) {
	if !r.Valid() {
		return Decision{
			Reason:     fmt.Sprintf("unknown role %q", c.ActorRole),
			Source:     SourceDenied,
			Permission: p.String(),
		}, nil
	}

	if d, ok := ownershipRule(c, p); ok {
		return d, nil
	}

	if d, ok := assignmentRule(c, p); ok {
		return d, nil
	}

	if e.table.IsGrantedByRole(r, p) {
		return Decision{
			Granted:    true,
			Reason:     fmt.Sprintf("role %s grants %s", r, p),
			Source:     SourceRole,
			Permission: p.String(),
		}, nil
	}

	if g, ok := e.dynamicGrant(c, r, p, resourceID); ok {
		return Decision{
			Granted:    true,
			Reason:     fmt.Sprintf("dynamic grant %s gives %s", g.ID, g.Permission),
			Source:     SourceDynamic,
			Permission: p.String(),
		}, g.ExpiresAt
	}

	if e.table.IsGrantedByHierarchy(r, p) {
		return Decision{
			Granted:    true,
			Reason:     fmt.Sprintf("role %s inherits %s", r, p),
			Source:     SourceHierarchy,
			Permission: p.String(),
		}, nil
	}

	if d, ok := adminOverride(r, p); ok {
		return d, nil
	}

	return Decision{
		Reason:     fmt.Sprintf("no permission grants %s to role %s", p, r),
		Source:     SourceDenied,
		Permission: p.String(),
	}, nil
}

// dynamicGrant finds an in-force grant satisfying p. Among several it
// prefers one without expiry, then the one that lasts longest.
func (e *Engine) dynamicGrant(c *Context, r role.Role, p permission.Permission, resourceID string) (grant.Grant, bool) {
	if e.grants == nil {
		return grant.Grant{}, false
	}

	scope := &grant.Scope{ResourceID: resourceID, TargetUserID: c.TargetUserID, Role: r}
	match := e.table.Matcher()

	var (
		best  grant.Grant
		found bool
	)

	for _, g := range e.grants.ListForUser(c.ActorID, scope) {
		if !match(g.Permission, p) {
			continue
		}

		switch {
		case !found:
			best, found = g, true
		case best.ExpiresAt == nil:
		case g.ExpiresAt == nil || g.ExpiresAt.After(*best.ExpiresAt):
			best = g
		}
	}

	return best, found
}

// EvaluateMany evaluates every request concurrently for the same context.
// The result map is keyed by Request.Key. It fails only when ctx ends first.
func (e *Engine) EvaluateMany(ctx context.Context, c *Context, reqs []Request) (map[string]Result, error) {
	if c == nil {
		panic("auth: EvaluateMany called with a nil Context")
	}

	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(reqs))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res := e.Evaluate(c, req.Action, req.Resource)

			mu.Lock()
			out[req.Key()] = res
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Grant issues a dynamic grant and audits it. Cached decisions of the
// user are invalidated through the store's change listener.
func (e *Engine) Grant(userID, perm, grantedBy, reason string, opts grant.Options) (grant.Grant, error) {
	if e.grants == nil {
		return grant.Grant{}, ErrGrantStoreUnavailable
	}

	g, err := e.grants.Grant(userID, perm, grantedBy, reason, opts)

	ev := audit.Event{
		Type:       audit.DynamicGranted,
		ActorID:    grantedBy,
		Action:     perm,
		Resource:   "grant",
		ResourceID: g.ID,
		Success:    err == nil,
		Reason:     reason,
		Source:     string(SourceDynamic),
		Metadata: map[string]string{
			"userId": userID,
		},
	}

	if err != nil {
		ev.Reason = err.Error()
	} else {
		ev.Action = g.Permission.String()
		ev.Metadata["grantId"] = g.ID

		if g.ResourceID != "" {
			ev.Metadata["resourceId"] = g.ResourceID
		}

		if g.Role != "" {
			ev.Metadata["role"] = string(g.Role)
		}

		if g.ExpiresAt != nil {
			ev.Metadata["expiresAt"] = g.ExpiresAt.Format(time.RFC3339)
		}
	}

	e.audit.Record(ev)

	if err != nil {
		return grant.Grant{}, err
	}

	log.Info().Str("grant_id", g.ID).Str("user_id", g.UserID).Str("permission", g.Permission.String()).
		Str("granted_by", g.GrantedBy).Msg("dynamic permission granted")

	return g, nil
}

// Revoke revokes a dynamic grant and audits it.
func (e *Engine) Revoke(grantID, revokedBy, reason string) (grant.Revocation, error) {
	return e.RevokeWithMetadata(grantID, revokedBy, reason, nil)
}

// RevokeWithMetadata is Revoke with metadata kept on the revocation record.
func (e *Engine) RevokeWithMetadata(grantID, revokedBy, reason string, metadata map[string]string) (grant.Revocation, error) {
	if e.grants == nil {
		return grant.Revocation{}, ErrGrantStoreUnavailable
	}

	rev, err := e.grants.RevokeWithMetadata(grantID, revokedBy, reason, metadata)
	e.recordRevocation(grantID, revokedBy, reason, rev, err)

	if err != nil {
		return grant.Revocation{}, err
	}

	log.Info().Str("grant_id", rev.GrantID).Str("user_id", rev.UserID).Str("permission", rev.Permission.String()).
		Str("revoked_by", rev.RevokedBy).Msg("dynamic permission revoked")

	return rev, nil
}

// RevokeAll revokes every active grant of userID and audits each revocation.
func (e *Engine) RevokeAll(userID, revokedBy, reason string) ([]grant.RevokeResult, error) {
	if e.grants == nil {
		return nil, ErrGrantStoreUnavailable
	}

	results := e.grants.RevokeAll(userID, revokedBy, reason)

	for _, res := range results {
		var rev grant.Revocation
		if res.Revocation != nil {
			rev = *res.Revocation
		}

		e.recordRevocation(res.GrantID, revokedBy, reason, rev, res.Err)
	}

	return results, nil
}

// Grants returns every grant of userID, including inactive ones.
func (e *Engine) Grants(userID string) ([]grant.Grant, error) {
	if e.grants == nil {
		return nil, ErrGrantStoreUnavailable
	}

	return e.grants.ListAll(userID), nil
}

// GrantsByRole returns the in-force grants bound to the role named r.
func (e *Engine) GrantsByRole(r string) ([]grant.Grant, error) {
	if e.grants == nil {
		return nil, ErrGrantStoreUnavailable
	}

	parsed, err := role.Parse(r)
	if err != nil {
		return nil, &grant.ValidationError{Field: "role", Reason: fmt.Sprintf("%q is not a known role", r), Err: err}
	}

	return e.grants.ListByRole(parsed), nil
}

// GrantsByPermission returns the in-force grants of perm.
func (e *Engine) GrantsByPermission(perm string) ([]grant.Grant, error) {
	if e.grants == nil {
		return nil, ErrGrantStoreUnavailable
	}

	if _, err := permission.Parse(perm); err != nil {
		return nil, &grant.ValidationError{Field: "permission", Reason: err.Error(), Err: err}
	}

	return e.grants.ListByPermission(perm), nil
}

// Revocations returns the revocation history of userID, oldest first.
func (e *Engine) Revocations(userID string) ([]grant.Revocation, error) {
	if e.grants == nil {
		return nil, ErrGrantStoreUnavailable
	}

	return e.grants.Revocations(userID), nil
}

// GrantStats summarises the grant store.
func (e *Engine) GrantStats() (grant.Stats, error) {
	if e.grants == nil {
		return grant.Stats{}, ErrGrantStoreUnavailable
	}

	return e.grants.Stats(), nil
}

// LookupGrant returns one grant by id.
func (e *Engine) LookupGrant(id string) (grant.Grant, error) {
	if e.grants == nil {
		return grant.Grant{}, ErrGrantStoreUnavailable
	}

	return e.grants.Get(id)
}

func (e *Engine) recordRevocation(grantID, revokedBy, reason string, rev grant.Revocation, err error) {
	ev := audit.Event{
		Type:       audit.DynamicRevoked,
		ActorID:    revokedBy,
		Action:     rev.Permission.String(),
		Resource:   "grant",
		ResourceID: grantID,
		Success:    err == nil,
		Reason:     reason,
		Source:     string(SourceDynamic),
		Metadata:   map[string]string{},
	}

	if err != nil {
		ev.Action = "revoke"
		ev.Reason = err.Error()
	} else {
		ev.Metadata["userId"] = rev.UserID
		ev.Metadata["revocationId"] = rev.ID
	}

	e.audit.Record(ev)
}

// EffectivePermissions lists what c's role holds, optionally with inherited
// permissions and the actor's in-force dynamic grants. An unknown role
// holds nothing.
func (e *Engine) EffectivePermissions(c *Context, includeDynamic, includeHierarchy bool) permission.Set {
	if c == nil {
		panic("auth: EffectivePermissions called with a nil Context")
	}

	r, err := role.Parse(c.ActorRole)
	if err != nil {
		return permission.NewSet()
	}

	set := e.table.EffectivePermissions(r, includeHierarchy)

	if includeDynamic && e.grants != nil {
		scope := &grant.Scope{ResourceID: c.ResourceID, TargetUserID: c.TargetUserID, Role: r}
		for _, g := range e.grants.ListForUser(c.ActorID, scope) {
			set.Add(g.Permission)
		}
	}

	return set
}

// AuditQuery returns matching audit events, newest first.
func (e *Engine) AuditQuery(f audit.Filter) []audit.Event {
	return e.audit.Query(f)
}

// AuditStatistics summarises the audit log.
func (e *Engine) AuditStatistics() audit.Statistics {
	return e.audit.Statistics()
}

// AuditExport encodes matching audit events.
func (e *Engine) AuditExport(format audit.Format, opts audit.ExportOptions) ([]byte, error) {
	return e.audit.Export(format, opts)
}

// InvalidateUser drops cached decisions made for userID. Decisions for the
// user still being computed are not cached either.
func (e *Engine) InvalidateUser(userID string) int {
	e.genMu.Lock()
	e.generations[userID]++
	e.genMu.Unlock()

	return e.cache.InvalidateByTag(userTag(userID))
}

func (e *Engine) generation(userID string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()

	return e.generations[userID]
}

// InvalidateResource drops cached decisions about resourceID.
func (e *Engine) InvalidateResource(resourceID string) int {
	return e.cache.InvalidateByTags("resource:"+resourceID, "product:"+resourceID)
}

// InvalidateRole drops cached decisions made for role r.
func (e *Engine) InvalidateRole(r string) int {
	return e.cache.InvalidateByTag("role:" + strings.ToLower(r))
}

// CacheStats returns the decision cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// WarmUpActor is an actor whose common decisions are cached at startup.
type WarmUpActor struct {
	ID    string
	Role  string
	Email string
}

// WarmUp evaluates every action for every actor so the answers are cached
// before traffic arrives. Warm-up evaluations are not audited. It returns
// how many decisions were computed, and does nothing in test and ephemeral
// environments.
func (e *Engine) WarmUp(actors []WarmUpActor, actions []string) int {
	if _, skip := noWarmUpEnvironments[e.environment]; skip {
		log.Debug().Str("environment", e.environment).Msg("skipping decision cache warm-up")

		return 0
	}

	n := 0

	for _, a := range actors {
		c := &Context{ActorID: a.ID, ActorRole: a.Role, ActorEmail: a.Email}

		for _, action := range actions {
			if res := e.evaluate(c, action, "", false); !res.Cached {
				n++
			}
		}
	}

	log.Info().Int("actors", len(actors)).Int("actions", len(actions)).Int("decisions", n).
		Msg("decision cache warmed up")

	return n
}

func (e *Engine) observe(res Result) {
	e.metrics.Decisions.WithLabelValues(string(res.Source), strconv.FormatBool(res.Granted)).Inc()
	e.metrics.DecisionDuration.WithLabelValues(strconv.FormatBool(res.Cached)).Observe(res.Elapsed.Seconds())
}

// record audits one decision, plus a security violation for a denied
// high-risk action.
func (e *Engine) record(c *Context, action, resourceID string, res Result) {
	typ := audit.CheckGranted
	if !res.Granted {
		typ = audit.CheckDenied
	}

	ev := audit.Event{
		Type:       typ,
		ActorID:    c.ActorID,
		ActorRole:  c.ActorRole,
		ActorEmail: c.ActorEmail,
		Action:     action,
		Resource:   resourceName(c, action),
		ResourceID: resourceID,
		Success:    res.Granted,
		Reason:     res.Reason,
		Source:     string(res.Source),
		IP:         c.Metadata.IP,
		SessionID:  c.Metadata.SessionID,
		RequestID:  c.Metadata.RequestID,
		Device:     c.Metadata.UserAgent,
		Geo:        c.Metadata.Geo,
		Metadata:   eventMetadata(c, res),
	}

	e.audit.Record(ev)

	if res.Granted || !audit.IsHighRiskAction(action) {
		return
	}

	ev.Type = audit.SecurityViolation
	ev.ID = ""
	ev.Reason = "denied high-risk action: " + res.Reason

	recorded := e.audit.Record(ev)

	log.Warn().Str("event_id", recorded.ID).Str("actor_id", c.ActorID).Str("actor_role", c.ActorRole).
		Str("action", action).Msg("security violation: high-risk action denied")
}

func eventMetadata(c *Context, res Result) map[string]string {
	md := make(map[string]string, len(c.Metadata.Extra)+4)
	for k, v := range c.Metadata.Extra {
		md[k] = v
	}

	md["cached"] = strconv.FormatBool(res.Cached)

	if c.TargetUserID != "" {
		md["targetUserId"] = c.TargetUserID
	}

	if c.CurrentState != "" {
		md["currentState"] = c.CurrentState
	}

	if c.TargetState != "" {
		md["targetState"] = c.TargetState
	}

	return md
}

// requestedPermission parses action, scoping a bare action to resourceType.
func requestedPermission(action, resourceType string) (permission.Permission, error) {
	p, err := permission.Parse(action)
	if err != nil {
		return permission.Permission{}, err
	}

	return p.WithResource(strings.ToLower(strings.TrimSpace(resourceType))), nil
}

func resourceName(c *Context, action string) string {
	if c.ResourceType != "" {
		return c.ResourceType
	}

	if p, err := permission.Parse(action); err == nil {
		return p.Resource
	}

	return ""
}

func cacheKey(c *Context, p permission.Permission, resourceID string) string {
	return cache.Key(
		c.ActorID,
		strings.ToLower(strings.TrimSpace(c.ActorRole)),
		p.String(),
		resourceID,
		strings.ToLower(c.ResourceType),
		c.ResourceOwnerID,
		c.AssignedActorID,
		strings.ToLower(c.CurrentState),
		c.TargetUserID,
	)
}

func cacheTags(c *Context, p permission.Permission, resourceID string) []string {
	tags := []string{
		"role:" + strings.ToLower(strings.TrimSpace(c.ActorRole)),
		userTag(c.ActorID),
		"action:" + p.String(),
	}

	if resourceID != "" {
		tags = append(tags, "resource:"+resourceID)

		if isProduct(c.ResourceType) {
			tags = append(tags, "product:"+resourceID)
		}
	}

	if c.ResourceOwnerID != "" {
		tags = append(tags, "owner:"+c.ResourceOwnerID)
	}

	if c.AssignedActorID != "" {
		tags = append(tags, "reviewer:"+c.AssignedActorID)
	}

	return tags
}

func isProduct(resourceType string) bool {
	switch strings.ToLower(resourceType) {
	case "product", "products":
		return true
	default:
		return false
	}
}

func userTag(userID string) string {
	return "user:" + userID
}
