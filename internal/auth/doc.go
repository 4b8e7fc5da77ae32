// Package auth is the authorization engine.
//
// An Engine answers one question: may this actor perform this action? The
// answer is a Result carrying the decision, a human readable reason and the
// Source that decided it.
//
// # Evaluation
//
// Evaluate runs a fixed sequence of stages and stops at the first grant:
//   - Cache: a decision cached for the same context is returned as is
//   - Context rules: owners may edit their drafts, assigned reviewers may
//     approve or reject what is under review
//   - Role: the static capability table of the actor's role
//   - Dynamic: in-force grants issued to the actor through Grant
//   - Hierarchy: permissions inherited from roles of lower authority
//   - Admin override: admins are always granted
//
// Everything else is denied. An unknown role is denied with a reason that
// names it. Every outcome is audited; a denied high-risk action is also
// recorded as a security violation.
//
// # Caching
//
// Decisions are cached with tags naming the role, user, action, resource,
// owner and reviewer they depend on. Grant and Revoke invalidate the user's
// decisions through the grant store's change listener, and collaborators
// whose data changed can call InvalidateUser, InvalidateResource or
// InvalidateRole. A decision resting on an expiring grant never outlives it.
//
// # Middleware
//
// RequirePermission protects Fiber routes by evaluating a permission for
// the actor named in the X-Actor-ID and X-Actor-Role headers.
//
// Example usage:
//
//	engine, err := auth.New(
//	    auth.WithGrantStore(grant.NewManager()),
//	)
//
//	res := engine.Evaluate(&auth.Context{ActorID: "u1", ActorRole: "editor"}, "products:update", "p-42")
//	if !res.Granted {
//	    return res.Reason
//	}
//
//	app.Get("/v1/audit/events", auth.RequirePermission(engine, auth.PermAuditRead), handler)
package auth
