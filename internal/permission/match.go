package permission

// Matcher reports whether a held permission satisfies a requested one.
type Matcher func(held, requested Permission) bool

// Match is the default matcher. On top of MatchStrict it lets an exact
// permission satisfy a bare request for the same action, so holding
// workflow:publish satisfies a request for "publish".
func Match(held, requested Permission) bool {
	if MatchStrict(held, requested) {
		return true
	}

	return held.Kind == Exact && requested.Kind == BareAction && held.Action == requested.Action
}

// MatchStrict matches without the reverse bare-action rule.
func MatchStrict(held, requested Permission) bool {
	if held.IsZero() || requested.IsZero() {
		return false
	}

	switch held.Kind {
	case Global:
		return true
	case Exact:
		return requested.Kind == Exact &&
			held.Resource == requested.Resource &&
			held.Action == requested.Action
	case ResourceWildcard:
		switch requested.Kind {
		case Exact, ResourceWildcard:
			return held.Resource == requested.Resource
		default:
			return false
		}
	case BareAction:
		switch requested.Kind {
		case Exact, BareAction:
			return held.Action == requested.Action
		default:
			return false
		}
	default:
		return false
	}
}

// Any reports whether any permission in held satisfies requested.
func Any(held []Permission, requested Permission, match Matcher) bool {
	if match == nil {
		match = Match
	}

	for _, h := range held {
		if match(h, requested) {
			return true
		}
	}

	return false
}
