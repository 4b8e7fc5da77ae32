package auth

import "strings"

// Permissions protecting the administrative HTTP endpoints. With the default
// role table only admin holds them.
const (
	// PermGrantCreate allows issuing dynamic grants.
	PermGrantCreate = "grants:create"
	// PermGrantRevoke allows revoking dynamic grants.
	PermGrantRevoke = "grants:revoke"
	// PermGrantRead allows listing dynamic grants.
	PermGrantRead = "grants:read"
	// PermAuditRead allows querying audit events and statistics.
	PermAuditRead = "audit:read"
	// PermAuditExport allows exporting audit events.
	PermAuditExport = "audit:export_data"
	// PermCacheManage allows invalidating cached decisions.
	PermCacheManage = "cache:manage"
)

// Workflow states the context rules look at. Compared ignoring case.
const (
	StateDraft  = "draft"
	StateReview = "review"
)

var editActions = map[string]struct{}{
	"edit":   {},
	"update": {},
	"modify": {},
	"write":  {},
}

var approveActions = map[string]struct{}{
	"approve": {},
	"reject":  {},
}

// IsEditAction reports whether verb is edit-class.
func IsEditAction(verb string) bool {
	_, ok := editActions[strings.ToLower(verb)]

	return ok
}

// IsApproveAction reports whether verb is approve/reject-class.
func IsApproveAction(verb string) bool {
	_, ok := approveActions[strings.ToLower(verb)]

	return ok
}
