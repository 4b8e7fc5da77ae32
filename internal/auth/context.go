package auth

import (
	"strings"
	"time"
)

// Context describes who is asking and about what. It is built per request
// and never stored. Only ActorID, ActorRole and the requested action are
// required; the other fields enable the context rules when present.
type Context struct {
	ActorID         string   `json:"actorId"`
	ActorRole       string   `json:"actorRole"`
	ActorEmail      string   `json:"actorEmail,omitempty"`
	TargetUserID    string   `json:"targetUserId,omitempty"`
	ResourceID      string   `json:"resourceId,omitempty"`
	ResourceType    string   `json:"resourceType,omitempty"`
	ResourceOwnerID string   `json:"resourceOwnerId,omitempty"`
	AssignedActorID string   `json:"assignedActorId,omitempty"`
	CurrentState    string   `json:"currentState,omitempty"`
	TargetState     string   `json:"targetState,omitempty"`
	Metadata        Metadata `json:"metadata"`
}

// Metadata carries request details that are audited but never decide access.
type Metadata struct {
	IP        string            `json:"ip,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	Geo       string            `json:"geo,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Source names the stage that decided.
type Source string

const (
	SourceRole          Source = "role"
	SourceHierarchy     Source = "hierarchy"
	SourceOwnership     Source = "ownership"
	SourceAssignment    Source = "assignment"
	SourceDynamic       Source = "dynamic"
	SourceAdminOverride Source = "admin_override"
	SourceDenied        Source = "denied"
)

// Decision is the cacheable part of a Result.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
	Source  Source `json:"source"`
	// Permission is the normalised permission that was evaluated.
	Permission string `json:"permission,omitempty"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Decision

	Cached  bool          `json:"cached"`
	Elapsed time.Duration `json:"elapsed"`
}

// Request is one entry of a batched evaluation.
type Request struct {
	Action   string `json:"action"`
	Resource string `json:"resource,omitempty"`
}

// Key identifies r in the map returned by EvaluateMany.
func (r Request) Key() string {
	action := strings.TrimSpace(r.Action)
	if r.Resource == "" {
		return action
	}

	return action + "@" + r.Resource
}
