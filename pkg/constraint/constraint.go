// Package constraint parses formula version constraints and classifies
// repository tags.
//
// A constraint is a comparator plus a tag, e.g. "==v1.2.3" or ">=v2.0".
// Tags follow the v{major}.{minor}.{patch}(-postfix) convention used by
// formula repositories; a postfix marks a prerelease.
package constraint

import (
	"regexp"
	"strings"
)

// Constraint is a single restriction on which revision of a formula is
// acceptable. The zero value means "unconstrained, take the latest release".
type Constraint struct {
	// Comparator is one of "", "==", ">=", "<=".
	Comparator string
	// Tag is the raw tag portion, e.g. "v1.2.3" or "my-branch".
	Tag string
	// Version is Tag with the leading "v" stripped, or "" when Tag is not
	// version-shaped. An "==" constraint with no Version refers to a branch.
	Version string
}

var comparatorRe = regexp.MustCompile(`^([=><]+)\s*(.*)$`)

// Parse splits a raw "<comparator><tag>" string into its parts. Strings that
// do not match the comparator+tag shape (including the empty string) parse to
// the zero Constraint; parsing never fails.
func Parse(raw string) Constraint {
	m := comparatorRe.FindStringSubmatch(raw)
	if m == nil || m[2] == "" {
		return Constraint{}
	}
	c := Constraint{Comparator: m[1], Tag: m[2]}
	if strings.HasPrefix(c.Tag, "v") {
		c.Version = strings.TrimPrefix(c.Tag, "v")
	}
	return c
}

// Empty reports whether the constraint places no restriction at all.
func (c Constraint) Empty() bool {
	return c.Comparator == "" && c.Tag == ""
}

// Versioned reports whether the tag portion is version-shaped. An "=="
// constraint on a non-versioned tag names a branch (or raw sha) instead.
func (c Constraint) Versioned() bool {
	return c.Version != ""
}

func (c Constraint) String() string {
	if c.Empty() {
		return ""
	}
	return c.Comparator + c.Tag
}
