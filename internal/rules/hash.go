package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// Document renders the tree as its canonical nested form: every node becomes
// an object with a `__rule` key holding the rule's string name and one key
// per child.
func (n *Node) Document() map[string]any {
	doc := map[string]any{"__rule": n.Rule.String()}
	for name, child := range n.Children {
		doc[name] = child.Document()
	}
	return doc
}

// Canonical serializes the tree to its canonical stringified form: the
// nested document with object keys sorted. Two trees with the same semantic
// content produce identical canonical strings.
func (n *Node) Canonical() string {
	return oj.JSON(n.Document(), &ojg.Options{Sort: true})
}

// Hash returns the lowercase hex SHA-256 of the canonical form. It
// identifies the rule set: equal semantics, equal hash.
func (n *Node) Hash() string {
	sum := sha256.Sum256([]byte(n.Canonical()))
	return hex.EncodeToString(sum[:])
}

// DecodeDocument parses a canonical nested document back into a tree. The
// `UNSET' sentinel is accepted here for round-trips of partially populated
// trees; it is rejected later by ApplyRules.
func DecodeDocument(doc any) (*Node, error) {
	return decodeDocument("", doc)
}

func decodeDocument(attrName string, doc any) (*Node, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rules tree node must be an object, got %T", doc)
	}
	node := &Node{AttrName: attrName, Rule: RuleDefault}
	for key, value := range obj {
		if key == "__rule" {
			name, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("__rule must be a string, got %T", value)
			}
			rule, err := ParseRule(name)
			if err != nil {
				return nil, err
			}
			node.Rule = rule
			continue
		}
		child, err := decodeDocument(key, value)
		if err != nil {
			return nil, err
		}
		if node.Children == nil {
			node.Children = make(map[string]*Node)
		}
		node.Children[key] = child
	}
	return node, nil
}
