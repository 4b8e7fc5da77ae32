package permission

import "sort"

// Set is a deduplicated collection of permissions.
type Set map[Permission]struct{}

// NewSet builds a Set from permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	s.Add(perms...)

	return s
}

// Add inserts permissions into the set.
func (s Set) Add(perms ...Permission) {
	for _, p := range perms {
		if !p.IsZero() {
			s[p] = struct{}{}
		}
	}
}

// Has reports whether p is literally in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]

	return ok
}

// Slice returns the set ordered by canonical string.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})

	return out
}

// Strings returns the sorted canonical strings.
func (s Set) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))

	for i, p := range perms {
		out[i] = p.String()
	}

	return out
}
