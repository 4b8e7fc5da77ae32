package grant

import (
	"time"

	"github.com/accessgate/accessgate/internal/permission"
	"github.com/accessgate/accessgate/internal/role"
)

// Grant is a dynamic permission held by one user.
type Grant struct {
	ID            string                `json:"id"`
	UserID        string                `json:"userId"`
	Permission    permission.Permission `json:"permission"`
	ResourceID    string                `json:"resourceId,omitempty"`
	Role          role.Role             `json:"role,omitempty"`
	GrantedBy     string                `json:"grantedBy"`
	GrantedAt     time.Time             `json:"grantedAt"`
	ExpiresAt     *time.Time            `json:"expiresAt,omitempty"`
	Reason        string                `json:"reason"`
	IsActive      bool                  `json:"isActive"`
	RevokedAt     *time.Time            `json:"revokedAt,omitempty"`
	RevokedBy     string                `json:"revokedBy,omitempty"`
	DeactivatedAt *time.Time            `json:"deactivatedAt,omitempty"`
	Metadata      map[string]string     `json:"metadata,omitempty"`
}

// IsExpired reports whether g has an expiry at or before now.
func IsExpired(g *Grant, now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// InForce reports whether g currently applies.
func (g *Grant) InForce(now time.Time) bool {
	return g.IsActive && g.RevokedAt == nil && !IsExpired(g, now)
}

// Applies reports whether an in-force g is usable within scope.
func (g *Grant) Applies(scope *Scope) bool {
	if g.ResourceID != "" {
		if scope == nil || (g.ResourceID != scope.ResourceID && g.ResourceID != scope.TargetUserID) {
			return false
		}
	}

	if g.Role != "" {
		if scope == nil || g.Role != scope.Role {
			return false
		}
	}

	return true
}

// endedAt returns when g stopped applying, or nil while it is still active.
func (g *Grant) endedAt() *time.Time {
	switch {
	case g.RevokedAt != nil:
		return g.RevokedAt
	case g.DeactivatedAt != nil:
		return g.DeactivatedAt
	default:
		return nil
	}
}

func (g *Grant) clone() Grant {
	out := *g

	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		out.ExpiresAt = &t
	}

	if g.RevokedAt != nil {
		t := *g.RevokedAt
		out.RevokedAt = &t
	}

	if g.DeactivatedAt != nil {
		t := *g.DeactivatedAt
		out.DeactivatedAt = &t
	}

	out.Metadata = cloneMetadata(g.Metadata)

	return out
}

// Revocation records the explicit revocation of one grant.
type Revocation struct {
	ID         string                `json:"id"`
	GrantID    string                `json:"grantId"`
	UserID     string                `json:"userId"`
	Permission permission.Permission `json:"permission"`
	RevokedBy  string                `json:"revokedBy"`
	RevokedAt  time.Time             `json:"revokedAt"`
	Reason     string                `json:"reason"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
}

// RevokeResult is one outcome of RevokeAll.
type RevokeResult struct {
	GrantID    string
	Revocation *Revocation
	Err        error
}

// Options carries the optional attributes of a new grant.
type Options struct {
	ResourceID string
	Role       string
	ExpiresAt  *time.Time
	Metadata   map[string]string
}

// Scope narrows which grants apply to an evaluation.
type Scope struct {
	ResourceID   string
	TargetUserID string
	Role         role.Role
}

// Stats summarises the grants held by a Manager.
type Stats struct {
	Total       int `json:"total"`
	InForce     int `json:"inForce"`
	Expired     int `json:"expired"`
	Revoked     int `json:"revoked"`
	Revocations int `json:"revocations"`
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}

	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
