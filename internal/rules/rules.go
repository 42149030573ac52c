// Package rules implements the path-indexed decision tree that classifies
// attribute paths during a scrape. A rule set is constructed once from a
// rules document, is immutable afterwards, and may be shared freely across
// scrape workers.
package rules

import (
	"errors"
	"fmt"

	"github.com/PyGeek03/flox/api"
)

// Rule classifies one node of the tree.
type Rule int

const (
	// RuleNone is the uninitialized sentinel used only while decoding a
	// serialized tree. It must never appear in a consistent tree.
	RuleNone Rule = iota
	// RuleDefault inherits from ancestors; with no deciding ancestor the
	// scrape engine falls back to evaluator hints.
	RuleDefault
	RuleAllowPackage
	RuleAllowRecursive
	RuleDisallowPackage
	RuleDisallowRecursive
)

func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "UNSET"
	case RuleDefault:
		return "default"
	case RuleAllowPackage:
		return "allowPackage"
	case RuleAllowRecursive:
		return "allowRecursive"
	case RuleDisallowPackage:
		return "disallowPackage"
	case RuleDisallowRecursive:
		return "disallowRecursive"
	default:
		return "UNKNOWN"
	}
}

// ParseRule inverts Rule.String.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "UNSET":
		return RuleNone, nil
	case "default":
		return RuleDefault, nil
	case "allowPackage":
		return RuleAllowPackage, nil
	case "allowRecursive":
		return RuleAllowRecursive, nil
	case "disallowPackage":
		return RuleDisallowPackage, nil
	case "disallowRecursive":
		return RuleDisallowRecursive, nil
	default:
		return RuleNone, fmt.Errorf("unrecognized scrape rule %q", s)
	}
}

// Decision is the tri-state outcome of ApplyRules.
type Decision int

const (
	Undecided Decision = iota
	Allow
	Disallow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Disallow:
		return "disallow"
	default:
		return "undecided"
	}
}

// ErrCorruptRule reports a rule value outside the enumerated set, which can
// only arise from a bug or on-disk corruption.
var ErrCorruptRule = errors.New("corrupt scrape rule")

// ConflictError reports an attempt to assign a second non-default rule to
// the same node.
type ConflictError struct {
	Path api.AttrPath
	Old  Rule
	New  Rule
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("attempted to overwrite existing rule `%s' for `%s' with new rule `%s'",
		e.Old, e.Path, e.New)
}

// Node is one vertex of a rules tree. Use NewNode for an empty root: the
// zero value carries RuleNone, which ApplyRules rejects as corrupt.
type Node struct {
	// AttrName is the segment this node matches; empty at the root.
	AttrName string
	// Rule is this node's own verdict; RuleDefault until assigned on nodes
	// built by NewNode, AddRule or DecodeDocument.
	Rule Rule
	// Children maps segment name to subtree; at most one child per segment.
	Children map[string]*Node

	systems []api.System // wildcard expansion set; nil means DefaultSystems
}

// NewNode returns an empty root that expands the system wildcard over the
// given set, or over api.DefaultSystems when systems is nil.
func NewNode(systems []api.System) *Node {
	return &Node{Rule: RuleDefault, systems: systems}
}

func (n *Node) systemSet() []api.System {
	if n.systems != nil {
		return n.systems
	}
	return api.DefaultSystems
}

// AddRule installs rule at the node addressed by path, creating intermediate
// nodes as needed. A nil segment in the system position expands into one
// insertion per member of the system set, each carrying the same rule.
// Assigning to a node whose rule is already non-default fails with a
// *ConflictError.
func (n *Node) AddRule(path api.AttrPathGlob, rule Rule) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return n.addRule(nil, path, rule)
}

func (n *Node) addRule(abs api.AttrPath, rel api.AttrPathGlob, rule Rule) error {
	if len(rel) == 0 {
		if n.Rule != RuleDefault {
			return &ConflictError{Path: abs, Old: n.Rule, New: rule}
		}
		n.Rule = rule
		return nil
	}

	// A wildcard at the front splits into one concrete insertion per system.
	if rel[0] == nil {
		for _, system := range n.systemSet() {
			sys := system
			relCopy := rel.Copy()
			relCopy[0] = &sys
			if err := n.addRule(abs, relCopy, rule); err != nil {
				return err
			}
		}
		return nil
	}

	name := *rel[0]
	abs = abs.Child(name)
	rel = rel[1:]

	if child, ok := n.Children[name]; ok {
		return child.addRule(abs, rel, rule)
	}
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	if len(rel) == 0 {
		n.Children[name] = &Node{AttrName: name, Rule: rule, systems: n.systems}
		return nil
	}
	child := &Node{AttrName: name, Rule: RuleDefault, systems: n.systems}
	n.Children[name] = child
	return child.addRule(abs, rel, rule)
}

// GetRule walks children segment by segment and returns the addressed
// node's own rule. Any missing segment short-circuits to RuleDefault; no
// ancestor inheritance is performed.
func (n *Node) GetRule(path api.AttrPath) Rule {
	node := n
	for _, name := range path {
		child, ok := node.Children[name]
		if !ok {
			return RuleDefault
		}
		node = child
	}
	return node.Rule
}

// ApplyRules resolves path to an allow/disallow decision, falling back to
// the nearest deciding ancestor. Undecided means no node on the path carries
// a non-default rule.
func (n *Node) ApplyRules(path api.AttrPath) (Decision, error) {
	rule := n.GetRule(path)
	for rule == RuleDefault && len(path) > 0 {
		path = path.Parent()
		rule = n.GetRule(path)
	}
	switch rule {
	case RuleAllowPackage, RuleAllowRecursive:
		return Allow, nil
	case RuleDisallowPackage, RuleDisallowRecursive:
		return Disallow, nil
	case RuleDefault:
		return Undecided, nil
	default:
		return Undecided, fmt.Errorf("%w: encountered unexpected rule `%s'", ErrCorruptRule, rule)
	}
}
