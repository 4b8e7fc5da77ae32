package auth

import (
	"fmt"
	"strings"

	"github.com/accessgate/accessgate/internal/permission"
	"github.com/accessgate/accessgate/internal/role"
)

// ownershipRule grants edit-class actions to the owner of a draft.
func ownershipRule(c *Context, p permission.Permission) (Decision, bool) {
	if c.ResourceOwnerID == "" || c.ResourceOwnerID != c.ActorID {
		return Decision{}, false
	}

	if !strings.EqualFold(c.CurrentState, StateDraft) || !IsEditAction(p.Verb()) {
		return Decision{}, false
	}

	return Decision{
		Granted:    true,
		Reason:     fmt.Sprintf("actor owns %s in draft state", describeResource(c)),
		Source:     SourceOwnership,
		Permission: p.String(),
	}, true
}

// assignmentRule grants approve/reject-class actions to the actor assigned
// to a resource under review.
func assignmentRule(c *Context, p permission.Permission) (Decision, bool) {
	if c.AssignedActorID == "" || c.AssignedActorID != c.ActorID {
		return Decision{}, false
	}

	if !strings.EqualFold(c.CurrentState, StateReview) || !IsApproveAction(p.Verb()) {
		return Decision{}, false
	}

	return Decision{
		Granted:    true,
		Reason:     fmt.Sprintf("actor is assigned to review %s", describeResource(c)),
		Source:     SourceAssignment,
		Permission: p.String(),
	}, true
}

// adminOverride grants everything to admins. It runs after every other stage.
func adminOverride(r role.Role, p permission.Permission) (Decision, bool) {
	if r != role.Admin {
		return Decision{}, false
	}

	return Decision{
		Granted:    true,
		Reason:     "admin override",
		Source:     SourceAdminOverride,
		Permission: p.String(),
	}, true
}

func describeResource(c *Context) string {
	switch {
	case c.ResourceType != "" && c.ResourceID != "":
		return c.ResourceType + " " + c.ResourceID
	case c.ResourceID != "":
		return "resource " + c.ResourceID
	case c.ResourceType != "":
		return c.ResourceType
	default:
		return "the resource"
	}
}
