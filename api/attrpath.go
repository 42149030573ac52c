// Package api holds the shared value types of the package database:
// attribute paths, attribute-path globs, and system names.
package api

import (
	"fmt"
	"strings"
)

// AttrPath is an ordered sequence of non-empty attribute names addressing a
// node in an evaluated attribute tree, e.g. ["legacyPackages",
// "x86_64-linux", "hello"].
type AttrPath []string

// System names a target OS/architecture pair, one axis of the attribute tree.
type System = string

// DefaultSystems is the fixed, build-time set of systems that the glob
// wildcard expands to. Kept sorted so expansion order is deterministic.
var DefaultSystems = []System{
	"aarch64-darwin",
	"aarch64-linux",
	"x86_64-darwin",
	"x86_64-linux",
}

// systemGlobIndex is the position within an attribute path at which the
// wildcard marker is permitted: <root>.<system>.<rest...>.
const systemGlobIndex = 1

// ParseAttrPath splits a dotted display-form path into its segments.
// Quoted segments ("a.b") are honored so round-trips through String work.
func ParseAttrPath(s string) (AttrPath, error) {
	if s == "" {
		return nil, nil
	}
	var (
		path AttrPath
		cur  strings.Builder
		inQ  bool
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			inQ = !inQ
		case '.':
			if inQ {
				cur.WriteByte(c)
				continue
			}
			if cur.Len() == 0 {
				return nil, fmt.Errorf("empty segment in attribute path %q", s)
			}
			path = append(path, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQ {
		return nil, fmt.Errorf("unterminated quote in attribute path %q", s)
	}
	if cur.Len() == 0 {
		return nil, fmt.Errorf("empty segment in attribute path %q", s)
	}
	return append(path, cur.String()), nil
}

// String renders the path in display form: segments joined by `.`, quoting
// any segment that is not a valid bare identifier.
func (p AttrPath) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		if isBareIdentifier(seg) {
			parts[i] = seg
		} else {
			parts[i] = `"` + seg + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Child returns a new path extended by one segment. The receiver is never
// aliased: scrape targets outlive the loop iteration that created them.
func (p AttrPath) Child(name string) AttrPath {
	child := make(AttrPath, len(p)+1)
	copy(child, p)
	child[len(p)] = name
	return child
}

// Parent returns the path without its final segment, or nil for the empty
// path.
func (p AttrPath) Parent() AttrPath {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

func isBareIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case (r >= '0' && r <= '9' || r == '-' || r == '\'') && i > 0:
		default:
			return false
		}
	}
	return true
}

// AttrPathGlob is an attribute path in which at most one segment — the one
// in the system position — may be nil (the wildcard marker) instead of a
// concrete name.
type AttrPathGlob []*string

// GlobSegment wraps a concrete segment for use in an AttrPathGlob literal.
func GlobSegment(s string) *string { return &s }

// Validate reports whether the glob is well formed: non-empty concrete
// segments everywhere, with a wildcard permitted only in the system position.
func (g AttrPathGlob) Validate() error {
	for i, seg := range g {
		if seg == nil {
			if i != systemGlobIndex {
				return fmt.Errorf("wildcard at position %d of %q: only the system position (%d) may be globbed",
					i, g.String(), systemGlobIndex)
			}
			continue
		}
		if *seg == "" {
			return fmt.Errorf("empty segment at position %d of %q", i, g.String())
		}
	}
	return nil
}

// String renders the glob in display form with `*` marking the wildcard.
func (g AttrPathGlob) String() string {
	parts := make([]string, len(g))
	for i, seg := range g {
		switch {
		case seg == nil:
			parts[i] = "*"
		case isBareIdentifier(*seg):
			parts[i] = *seg
		default:
			parts[i] = `"` + *seg + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Copy returns a glob sharing no backing storage with the receiver.
func (g AttrPathGlob) Copy() AttrPathGlob {
	out := make(AttrPathGlob, len(g))
	copy(out, g)
	return out
}

// GlobOf lifts a concrete path into a glob with no wildcard.
func GlobOf(p AttrPath) AttrPathGlob {
	g := make(AttrPathGlob, len(p))
	for i := range p {
		g[i] = &p[i]
	}
	return g
}
