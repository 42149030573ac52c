package eval

import (
	"fmt"
	"os"
	"sort"

	"github.com/ohler55/ojg/oj"
)

// TreeCursor implements Cursor over a fully materialized attribute tree
// decoded from JSON, the shape produced by `nix eval --json`. Object nodes
// with `"type": "derivation"` are derivations; every other object is an
// attribute set.
type TreeCursor struct {
	value any
}

// NewTreeCursor wraps a decoded JSON value.
func NewTreeCursor(value any) *TreeCursor {
	return &TreeCursor{value: value}
}

// ParseTree decodes a JSON attribute tree.
func ParseTree(data []byte) (*TreeCursor, error) {
	value, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse attribute tree: %w", err)
	}
	return NewTreeCursor(value), nil
}

// LoadTree reads and decodes a JSON attribute tree from disk.
func LoadTree(path string) (*TreeCursor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attribute tree: %w", err)
	}
	return ParseTree(data)
}

func (c *TreeCursor) attrs() (map[string]any, bool) {
	m, ok := c.value.(map[string]any)
	return m, ok
}

// IsDerivation implements Cursor.
func (c *TreeCursor) IsDerivation() (bool, error) {
	m, ok := c.attrs()
	if !ok {
		return false, nil
	}
	t, _ := m["type"].(string)
	return t == "derivation", nil
}

// Children implements Cursor. Names are returned sorted so traversal order
// is stable across runs.
func (c *TreeCursor) Children() ([]Child, error) {
	m, ok := c.attrs()
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	children := make([]Child, 0, len(names))
	for _, name := range names {
		children = append(children, Child{Name: name, Cursor: &TreeCursor{value: m[name]}})
	}
	return children, nil
}

// GetAttr implements Cursor.
func (c *TreeCursor) GetAttr(name string) (Cursor, error) {
	m, ok := c.attrs()
	if !ok {
		return nil, fmt.Errorf("%w: `%s'", ErrNoSuchAttr, name)
	}
	value, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: `%s'", ErrNoSuchAttr, name)
	}
	return &TreeCursor{value: value}, nil
}

// GetBool implements Cursor.
func (c *TreeCursor) GetBool(name string) (bool, error) {
	value, err := c.attrValue(name)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: `%s' is %T, want bool", ErrWrongType, name, value)
	}
	return b, nil
}

// GetString implements Cursor.
func (c *TreeCursor) GetString(name string) (string, error) {
	value, err := c.attrValue(name)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: `%s' is %T, want string", ErrWrongType, name, value)
	}
	return s, nil
}

// GetStringList implements Cursor.
func (c *TreeCursor) GetStringList(name string) ([]string, error) {
	value, err := c.attrValue(name)
	if err != nil {
		return nil, err
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: `%s' is %T, want list of strings", ErrWrongType, name, value)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: `%s' contains %T, want string", ErrWrongType, name, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *TreeCursor) attrValue(name string) (any, error) {
	m, ok := c.attrs()
	if !ok {
		return nil, fmt.Errorf("%w: `%s'", ErrNoSuchAttr, name)
	}
	value, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: `%s'", ErrNoSuchAttr, name)
	}
	return value, nil
}

// Verify interface compliance at compile time.
var _ Cursor = (*TreeCursor)(nil)
