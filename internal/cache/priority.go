package cache

import "strings"

// Priority orders entries for eviction. Lower priorities are evicted first.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

var priorityNames = [...]string{"low", "normal", "high", "critical"}

// String implements fmt.Stringer.
func (p Priority) String() string {
	if p < Low || p > Critical {
		return "unknown"
	}

	return priorityNames[p]
}

// readVerbs are the actions whose decisions are re-queried most often.
var readVerbs = map[string]struct{}{
	"read": {},
	"view": {},
	"list": {},
	"get":  {},
}

// DerivePriority picks the eviction priority of a decision. Admin decisions
// are critical, denials low, reads high and everything else normal.
func DerivePriority(admin bool, action string, granted bool) Priority {
	switch {
	case admin:
		return Critical
	case !granted:
		return Low
	}

	verb := strings.ToLower(strings.TrimSpace(action))
	if i := strings.LastIndexByte(verb, ':'); i >= 0 {
		verb = verb[i+1:]
	}

	if _, ok := readVerbs[verb]; ok {
		return High
	}

	return Normal
}
