package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg/oj"
	"gopkg.in/yaml.v3"

	"github.com/PyGeek03/flox/api"
)

// Raw is a rules document in raw form: four parallel lists of attribute-path
// globs, one per rule variant.
type Raw struct {
	AllowPackage      []api.AttrPathGlob
	DisallowPackage   []api.AttrPathGlob
	AllowRecursive    []api.AttrPathGlob
	DisallowRecursive []api.AttrPathGlob
}

// UnknownSectionError reports a top-level key outside the four recognized
// rule sections.
type UnknownSectionError struct {
	Key string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown scrape rule section: `%s'", e.Key)
}

// DecodeRaw interprets a decoded document (maps, slices, strings, nils) as a
// raw rules document.
func DecodeRaw(doc any) (*Raw, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rules document must be an object, got %T", doc)
	}
	raw := &Raw{}
	for key, value := range obj {
		var dst *[]api.AttrPathGlob
		switch key {
		case "allowPackage":
			dst = &raw.AllowPackage
		case "disallowPackage":
			dst = &raw.DisallowPackage
		case "allowRecursive":
			dst = &raw.AllowRecursive
		case "disallowRecursive":
			dst = &raw.DisallowRecursive
		default:
			return nil, &UnknownSectionError{Key: key}
		}
		globs, err := decodeGlobList(value)
		if err != nil {
			return nil, fmt.Errorf("couldn't interpret field `%s': %w", key, err)
		}
		*dst = globs
	}
	return raw, nil
}

func decodeGlobList(value any) ([]api.AttrPathGlob, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of attribute path globs, got %T", value)
	}
	globs := make([]api.AttrPathGlob, 0, len(list))
	for _, entry := range list {
		segs, ok := entry.([]any)
		if !ok {
			return nil, fmt.Errorf("expected an attribute path glob, got %T", entry)
		}
		glob := make(api.AttrPathGlob, 0, len(segs))
		for _, seg := range segs {
			switch s := seg.(type) {
			case nil:
				glob = append(glob, nil)
			case string:
				glob = append(glob, api.GlobSegment(s))
			default:
				return nil, fmt.Errorf("glob segment must be a string or null, got %T", seg)
			}
		}
		if err := glob.Validate(); err != nil {
			return nil, err
		}
		globs = append(globs, glob)
	}
	return globs, nil
}

// ParseRawJSON decodes a JSON rules document.
func ParseRawJSON(data []byte) (*Raw, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules document: %w", err)
	}
	return DecodeRaw(doc)
}

// ParseRawYAML decodes a YAML rules document. The wildcard is YAML null.
func ParseRawYAML(data []byte) (*Raw, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules document: %w", err)
	}
	return DecodeRaw(doc)
}

// FromRaw builds a rules tree over the given system set (nil means
// api.DefaultSystems) by inserting every entry of the raw document.
func FromRaw(raw *Raw, systems []api.System) (*Node, error) {
	root := NewNode(systems)
	for _, entry := range []struct {
		globs []api.AttrPathGlob
		rule  Rule
	}{
		{raw.AllowPackage, RuleAllowPackage},
		{raw.DisallowPackage, RuleDisallowPackage},
		{raw.AllowRecursive, RuleAllowRecursive},
		{raw.DisallowRecursive, RuleDisallowRecursive},
	} {
		for _, glob := range entry.globs {
			if err := root.AddRule(glob, entry.rule); err != nil {
				return nil, err
			}
		}
	}
	return root, nil
}

// FromFile reads and builds a rules tree from a JSON or YAML document,
// dispatching on the file extension.
func FromFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var raw *Raw
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		raw, err = ParseRawYAML(data)
	default:
		raw, err = ParseRawJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return FromRaw(raw, nil)
}
