// Package permission implements the permission grammar used by the
// authorization engine.
//
// A permission is written in one of four shapes:
//
//	products:create   exact resource and action
//	products:*        every action on one resource
//	*                 everything
//	approve           one action on any resource
//
// Strings are parsed once into a Permission value and compared
// structurally. All comparisons are case-insensitive because parsing
// lower-cases the input.
package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the shape of a Permission.
type Kind int

const (
	// Exact is a resource:action permission.
	Exact Kind = iota + 1
	// ResourceWildcard is a resource:* permission.
	ResourceWildcard
	// Global is the * permission.
	Global
	// BareAction is an action without a resource.
	BareAction
)

const (
	separator = ":"
	wildcard  = "*"
)

var (
	// ErrEmpty is returned when parsing an empty permission string.
	ErrEmpty = errors.New("permission is empty")

	// ErrMalformed is returned when a permission string has an empty resource or action part.
	ErrMalformed = errors.New("permission is malformed")
)

// Permission is a parsed permission. The zero value is invalid.
type Permission struct {
	Kind     Kind
	Resource string
	Action   string
}

// Parse parses s into a Permission.
func Parse(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Permission{}, ErrEmpty
	}

	if s == wildcard {
		return Permission{Kind: Global}, nil
	}

	resource, action, found := strings.Cut(s, separator)
	if !found {
		if strings.Contains(s, wildcard) {
			return Permission{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}

		return Permission{Kind: BareAction, Action: s}, nil
	}

	if resource == "" || action == "" || resource == wildcard {
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	if action == wildcard {
		return Permission{Kind: ResourceWildcard, Resource: resource}, nil
	}

	return Permission{Kind: Exact, Resource: resource, Action: action}, nil
}

// MustParse is like Parse but panics on error. Use it for static tables only.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return p
}

// New builds an exact permission from a resource and an action.
func New(resource, action string) Permission {
	return Permission{
		Kind:     Exact,
		Resource: strings.ToLower(resource),
		Action:   strings.ToLower(action),
	}
}

// IsZero reports whether p is the zero value.
func (p Permission) IsZero() bool {
	return p.Kind == 0
}

// String returns the canonical string form.
func (p Permission) String() string {
	switch p.Kind {
	case Exact:
		return p.Resource + separator + p.Action
	case ResourceWildcard:
		return p.Resource + separator + wildcard
	case Global:
		return wildcard
	case BareAction:
		return p.Action
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// Verb returns the action part, or an empty string for wildcard shapes.
func (p Permission) Verb() string {
	switch p.Kind {
	case Exact, BareAction:
		return p.Action
	default:
		return ""
	}
}

// WithResource scopes a bare action to resource. Other shapes are returned unchanged.
func (p Permission) WithResource(resource string) Permission {
	if p.Kind != BareAction || resource == "" {
		return p
	}

	return New(resource, p.Action)
}
