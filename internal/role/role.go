// Package role defines the closed set of roles, their authority levels and
// the static capability table with hierarchical inheritance.
package role

import (
	"errors"
	"fmt"
	"strings"
)

// Role is one of the known roles.
type Role string

const (
	// Admin has full authority.
	Admin Role = "admin"
	// Editor creates and maintains products.
	Editor Role = "editor"
	// Reviewer approves or rejects workflow submissions.
	Reviewer Role = "reviewer"
	// Viewer has read-only access.
	Viewer Role = "viewer"
)

// ErrUnknownRole is returned for a role outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// levels maps each role to its authority level. Lower means more authority.
var levels = map[Role]int{ //nolint:gochecknoglobals
	Admin:    1,
	Editor:   2,
	Reviewer: 2,
	Viewer:   3,
}

// All returns every known role ordered by authority, most privileged first.
func All() []Role {
	return []Role{Admin, Editor, Reviewer, Viewer}
}

// Parse resolves s to a Role, ignoring case and surrounding space.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levels[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}

	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := levels[r]

	return ok
}

// Level returns the authority level of r, or 0 for an unknown role.
func (r Role) Level() int {
	return levels[r]
}

// Outranks reports whether r has strictly more authority than other.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && other.Valid() && r.Level() < other.Level()
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
