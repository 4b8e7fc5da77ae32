package grant

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/accessgate/accessgate/internal/clock"
	"github.com/accessgate/accessgate/internal/metrics"
	"github.com/accessgate/accessgate/internal/permission"
	"github.com/accessgate/accessgate/internal/role"
)

// DefaultRetention is how long inactive grants are kept before Purge deletes them.
const DefaultRetention = 30 * 24 * time.Hour

// Listener is told which user's grants changed. It is called without any
// Manager lock held.
type Listener func(userID string)

// request is the validated shape of Grant input.
type request struct {
	UserID     string `validate:"required"`
	Permission string `validate:"required,permission"`
	GrantedBy  string `validate:"required"`
	Reason     string `validate:"required"`
	Role       string `validate:"omitempty,role"`
}

// revokeRequest is the validated shape of Revoke input.
type revokeRequest struct {
	GrantID   string `validate:"required"`
	RevokedBy string `validate:"required"`
	Reason    string `validate:"required"`
}

// Manager stores dynamic grants and their revocations in memory.
type Manager struct {
	mu sync.RWMutex

	grants      map[string]*Grant
	revocations map[string]*Revocation // keyed by grant id

	byUser       map[string]map[string]struct{}
	byRole       map[role.Role]map[string]struct{}
	byPermission map[string]map[string]struct{}

	clock     clock.Clock
	validate  *validator.Validate
	retention time.Duration
	metrics   *metrics.Metrics

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithRetention sets how long inactive grants are kept.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithMetrics sets the collectors the Manager reports to.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		grants:       make(map[string]*Grant),
		revocations:  make(map[string]*Revocation),
		byUser:       make(map[string]map[string]struct{}),
		byRole:       make(map[role.Role]map[string]struct{}),
		byPermission: make(map[string]map[string]struct{}),
		clock:        clock.Real(),
		validate:     newValidator(),
		retention:    DefaultRetention,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = metrics.New(nil)
	}

	return m
}

// OnChange registers l to be called whenever a user's grants change.
func (m *Manager) OnChange(l Listener) {
	if l == nil {
		return
	}

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = append(m.listeners, l)
}

// Grant issues permission to userID. It fails with a *ValidationError when
// input is missing or malformed, when ExpiresAt is not in the future, or
// when an in-force grant already exists for the same user, permission and
// resource.
func (m *Manager) Grant(userID, perm, grantedBy, reason string, opts Options) (Grant, error) {
	req := request{
		UserID:     strings.TrimSpace(userID),
		Permission: strings.TrimSpace(perm),
		GrantedBy:  strings.TrimSpace(grantedBy),
		Reason:     strings.TrimSpace(reason),
		Role:       strings.TrimSpace(opts.Role),
	}

	if err := m.validate.Struct(req); err != nil {
		return Grant{}, toValidationError(err)
	}

	parsed, _ := permission.Parse(req.Permission) // validated above

	var scopedRole role.Role
	if req.Role != "" {
		scopedRole, _ = role.Parse(req.Role) // validated above
	}

	now := m.clock.Now()

	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return Grant{}, &ValidationError{Field: "expiresAt", Reason: "must be in the future"}
	}

	g := &Grant{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Permission: parsed,
		ResourceID: strings.TrimSpace(opts.ResourceID),
		Role:       scopedRole,
		GrantedBy:  req.GrantedBy,
		GrantedAt:  now,
		Reason:     req.Reason,
		IsActive:   true,
		Metadata:   cloneMetadata(opts.Metadata),
	}

	if opts.ExpiresAt != nil {
		t := *opts.ExpiresAt
		g.ExpiresAt = &t
	}

	m.mu.Lock()

	for id := range m.byUser[g.UserID] {
		existing := m.grants[id]
		if existing.InForce(now) && existing.Permission == g.Permission && existing.ResourceID == g.ResourceID {
			m.mu.Unlock()

			return Grant{}, &ValidationError{
				Field:  "permission",
				Reason: fmt.Sprintf("grant %s already gives %s to %s", existing.ID, g.Permission, g.UserID),
				Err:    ErrDuplicateGrant,
			}
		}
	}

	m.insertLocked(g)
	out := g.clone()
	m.updateGaugeLocked(now)

	m.mu.Unlock()

	m.metrics.GrantOperations.WithLabelValues("granted").Inc()
	m.notify(g.UserID)

	return out, nil
}

// Revoke deactivates grant grantID. It fails with ErrGrantNotFound or
// ErrGrantInactive; a grant is never revoked twice.
func (m *Manager) Revoke(grantID, revokedBy, reason string) (Revocation, error) {
	return m.revoke(grantID, revokedBy, reason, nil)
}

// RevokeWithMetadata is Revoke with metadata attached to the revocation record.
func (m *Manager) RevokeWithMetadata(grantID, revokedBy, reason string, metadata map[string]string) (Revocation, error) {
	return m.revoke(grantID, revokedBy, reason, metadata)
}

func (m *Manager) revoke(grantID, revokedBy, reason string, metadata map[string]string) (Revocation, error) {
	req := revokeRequest{
		GrantID:   strings.TrimSpace(grantID),
		RevokedBy: strings.TrimSpace(revokedBy),
		Reason:    strings.TrimSpace(reason),
	}

	if err := m.validate.Struct(req); err != nil {
		return Revocation{}, toValidationError(err)
	}

	m.mu.Lock()

	g, ok := m.grants[req.GrantID]
	if !ok {
		m.mu.Unlock()

		return Revocation{}, fmt.Errorf("%w: %s", ErrGrantNotFound, req.GrantID)
	}

	if !g.IsActive || g.RevokedAt != nil {
		m.mu.Unlock()

		return Revocation{}, fmt.Errorf("%w: %s", ErrGrantInactive, req.GrantID)
	}

	now := m.clock.Now()
	g.IsActive = false
	g.RevokedAt = &now
	g.RevokedBy = req.RevokedBy

	rev := &Revocation{
		ID:         uuid.NewString(),
		GrantID:    g.ID,
		UserID:     g.UserID,
		Permission: g.Permission,
		RevokedBy:  req.RevokedBy,
		RevokedAt:  now,
		Reason:     req.Reason,
		Metadata:   cloneMetadata(metadata),
	}
	m.revocations[g.ID] = rev
	out := *rev
	out.Metadata = cloneMetadata(rev.Metadata)
	m.updateGaugeLocked(now)

	m.mu.Unlock()

	m.metrics.GrantOperations.WithLabelValues("revoked").Inc()
	m.notify(g.UserID)

	return out, nil
}

// RevokeAll revokes every active grant of userID and reports one result per grant.
func (m *Manager) RevokeAll(userID, revokedBy, reason string) []RevokeResult {
	m.mu.RLock()

	ids := make([]string, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		if m.grants[id].IsActive {
			ids = append(ids, id)
		}
	}

	m.mu.RUnlock()

	sort.Strings(ids)

	results := make([]RevokeResult, 0, len(ids))

	for _, id := range ids {
		rev, err := m.Revoke(id, revokedBy, reason)

		res := RevokeResult{GrantID: id, Err: err}
		if err == nil {
			res.Revocation = &rev
		}

		results = append(results, res)
	}

	return results
}

// Get returns the grant with id.
func (m *Manager) Get(id string) (Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grants[id]
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s", ErrGrantNotFound, id)
	}

	return g.clone(), nil
}

// ListForUser returns the in-force grants of userID that apply within
// scope. A grant bound to a resource applies only when scope names that
// resource or user; a grant bound to a role only when scope carries that role.
func (m *Manager) ListForUser(userID string, scope *Scope) []Grant {
	now := m.clock.Now()

	return m.collect(func() map[string]struct{} { return m.byUser[userID] }, func(g *Grant) bool {
		return g.InForce(now) && g.Applies(scope)
	})
}

// ListActive returns every in-force grant of userID regardless of scope.
func (m *Manager) ListActive(userID string) []Grant {
	now := m.clock.Now()

	return m.collect(func() map[string]struct{} { return m.byUser[userID] }, func(g *Grant) bool {
		return g.InForce(now)
	})
}

// ListAll returns every grant of userID including inactive ones.
func (m *Manager) ListAll(userID string) []Grant {
	return m.collect(func() map[string]struct{} { return m.byUser[userID] }, func(*Grant) bool { return true })
}

// ListByRole returns the in-force grants bound to r.
func (m *Manager) ListByRole(r role.Role) []Grant {
	now := m.clock.Now()

	return m.collect(func() map[string]struct{} { return m.byRole[r] }, func(g *Grant) bool {
		return g.InForce(now)
	})
}

// ListByPermission returns the in-force grants of perm.
func (m *Manager) ListByPermission(perm string) []Grant {
	p, err := permission.Parse(perm)
	if err != nil {
		return nil
	}

	now := m.clock.Now()

	return m.collect(func() map[string]struct{} { return m.byPermission[p.String()] }, func(g *Grant) bool {
		return g.InForce(now)
	})
}

// Revocations returns the revocation records of userID, oldest first.
func (m *Manager) Revocations(userID string) []Revocation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Revocation

	for id := range m.byUser[userID] {
		if rev, ok := m.revocations[id]; ok {
			r := *rev
			r.Metadata = cloneMetadata(rev.Metadata)
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RevokedAt.Before(out[j].RevokedAt)
	})

	return out
}

// SweepExpired deactivates grants that expired while still marked active
// and returns how many were deactivated.
func (m *Manager) SweepExpired() int {
	now := m.clock.Now()

	m.mu.Lock()

	count := 0
	affected := make(map[string]struct{})

	for _, g := range m.grants {
		if g.IsActive && g.RevokedAt == nil && IsExpired(g, now) {
			g.IsActive = false
			t := now
			g.DeactivatedAt = &t
			affected[g.UserID] = struct{}{}
			count++
		}
	}

	m.updateGaugeLocked(now)

	m.mu.Unlock()

	for userID := range affected {
		m.notify(userID)
	}

	m.metrics.GrantOperations.WithLabelValues("expired").Add(float64(count))

	return count
}

// Purge deletes inactive grants, with their revocation records, whose end
// lies further back than the retention window. It returns how many were deleted.
func (m *Manager) Purge() int {
	now := m.clock.Now()
	cutoff := now.Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for id, g := range m.grants {
		end := g.endedAt()
		if end == nil || end.After(cutoff) {
			continue
		}

		m.removeLocked(g)
		delete(m.revocations, id)

		removed++
	}

	m.metrics.GrantOperations.WithLabelValues("purged").Add(float64(removed))

	return removed
}

// Stats summarises the stored grants.
func (m *Manager) Stats() Stats {
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Total: len(m.grants), Revocations: len(m.revocations)}

	for _, g := range m.grants {
		switch {
		case g.RevokedAt != nil:
			s.Revoked++
		case g.DeactivatedAt != nil || IsExpired(g, now):
			s.Expired++
		case g.InForce(now):
			s.InForce++
		}
	}

	return s
}

// collect copies the grants of the index entry returned by lookup that keep
// accepts, oldest first. lookup runs under the read lock.
func (m *Manager) collect(lookup func() map[string]struct{}, keep func(*Grant) bool) []Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := lookup()
	out := make([]Grant, 0, len(ids))

	for id := range ids {
		g := m.grants[id]
		if g != nil && keep(g) {
			out = append(out, g.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})

	return out
}

func (m *Manager) insertLocked(g *Grant) {
	m.grants[g.ID] = g
	addIndex(m.byUser, g.UserID, g.ID)
	addIndex(m.byPermission, g.Permission.String(), g.ID)

	if g.Role != "" {
		addIndex(m.byRole, g.Role, g.ID)
	}
}

func (m *Manager) removeLocked(g *Grant) {
	delete(m.grants, g.ID)
	removeIndex(m.byUser, g.UserID, g.ID)
	removeIndex(m.byPermission, g.Permission.String(), g.ID)

	if g.Role != "" {
		removeIndex(m.byRole, g.Role, g.ID)
	}
}

func (m *Manager) updateGaugeLocked(now time.Time) {
	n := 0

	for _, g := range m.grants {
		if g.InForce(now) {
			n++
		}
	}

	m.metrics.GrantsInForce.Set(float64(n))
}

func (m *Manager) notify(userID string) {
	m.listenersMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l(userID)
	}
}

func addIndex[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}

	set[id] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	set, ok := idx[key]
	if !ok {
		return
	}

	delete(set, id)

	if len(set) == 0 {
		delete(idx, key)
	}
}

// newValidator returns a validator with the permission and role tags registered.
func newValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		_, err := permission.Parse(fl.Field().String())

		return err == nil
	})

	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return role.Role(strings.ToLower(fl.Field().String())).Valid()
	})

	return v
}

// toValidationError converts the first validator failure into a *ValidationError.
func toValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return &ValidationError{Field: "input", Reason: err.Error()}
	}

	fe := validationErrors[0]
	field := lowerFirst(fe.Field())

	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Reason: "is required"}
	case "permission":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a valid permission", fe.Value())}
	case "role":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a known role", fe.Value()), Err: role.ErrUnknownRole}
	default:
		return &ValidationError{Field: field, Reason: "failed " + fe.Tag() + " validation"}
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}

	return strings.ToLower(s[:1]) + s[1:]
}
