package role

import (
	"fmt"

	"github.com/accessgate/accessgate/internal/permission"
)

// DefaultCapabilities is the built-in role capability table.
func DefaultCapabilities() map[Role][]string {
	return map[Role][]string{
		Admin: {"*"},
		Editor: {
			"products:create",
			"products:read",
			"products:update",
			"products:list",
			"workflow:submit",
			"workflow:read",
			"comments:create",
		},
		Reviewer: {
			"products:read",
			"products:list",
			"workflow:read",
			"workflow:approve",
			"workflow:reject",
			"comments:create",
		},
		Viewer: {
			"products:read",
			"products:list",
			"workflow:read",
			"dashboard:view",
		},
	}
}

// Table is the immutable role capability table. It is safe for concurrent
// use because nothing mutates it after NewTable returns.
type Table struct {
	base      map[Role][]permission.Permission
	inherited map[Role][]permission.Permission
	match     permission.Matcher
}

// Option configures a Table.
type Option func(*Table)

// WithMatcher replaces the default permission matcher.
func WithMatcher(m permission.Matcher) Option {
	return func(t *Table) {
		if m != nil {
			t.match = m
		}
	}
}

// NewTable parses caps into a Table. Roles missing from caps get no
// permissions. Unknown roles or malformed permissions are an error.
func NewTable(caps map[Role][]string, opts ...Option) (*Table, error) {
	t := &Table{
		base:      make(map[Role][]permission.Permission, len(levels)),
		inherited: make(map[Role][]permission.Permission, len(levels)),
		match:     permission.Match,
	}

	for _, opt := range opts {
		opt(t)
	}

	for r, raw := range caps {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
		}

		set := permission.NewSet()

		for _, s := range raw {
			p, err := permission.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", r, err)
			}

			set.Add(p)
		}

		t.base[r] = set.Slice()
	}

	// precompute inheritance: every role strictly below r flows up into r
	for _, r := range All() {
		set := permission.NewSet()

		for _, lower := range All() {
			if r.Outranks(lower) {
				set.Add(t.base[lower]...)
			}
		}

		t.inherited[r] = set.Slice()
	}

	return t, nil
}

// MustDefault returns the table built from DefaultCapabilities.
func MustDefault(opts ...Option) *Table {
	t, err := NewTable(DefaultCapabilities(), opts...)
	if err != nil {
		panic(err)
	}

	return t
}

// Permissions returns the base permissions of r.
func (t *Table) Permissions(r Role) []permission.Permission {
	return clonePerms(t.base[r])
}

// HierarchyPermissions returns the union of the base permissions of every
// role with less authority than r. It never includes permissions of roles
// at the same or a higher level.
func (t *Table) HierarchyPermissions(r Role) []permission.Permission {
	return clonePerms(t.inherited[r])
}

// IsGrantedByRole reports whether the base permissions of r satisfy p.
func (t *Table) IsGrantedByRole(r Role, p permission.Permission) bool {
	return permission.Any(t.base[r], p, t.match)
}

// IsGrantedByHierarchy reports whether an inherited permission of r satisfies p.
func (t *Table) IsGrantedByHierarchy(r Role, p permission.Permission) bool {
	return permission.Any(t.inherited[r], p, t.match)
}

// EffectivePermissions returns the base permissions of r, plus the
// inherited ones when includeHierarchy is set. Admin always lists what it
// inherits, so its set is the largest either way.
func (t *Table) EffectivePermissions(r Role, includeHierarchy bool) permission.Set {
	set := permission.NewSet(t.base[r]...)
	if includeHierarchy || r == Admin {
		set.Add(t.inherited[r]...)
	}

	return set
}

// Matcher returns the matcher the table was built with.
func (t *Table) Matcher() permission.Matcher {
	return t.match
}

func clonePerms(in []permission.Permission) []permission.Permission {
	if in == nil {
		return nil
	}

	out := make([]permission.Permission, len(in))
	copy(out, in)

	return out
}
