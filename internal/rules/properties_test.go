package rules

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ohler55/ojg/oj"

	"github.com/PyGeek03/flox/api"
)

func ruleGen() gopter.Gen {
	return gen.OneConstOf(RuleAllowPackage, RuleAllowRecursive, RuleDisallowPackage, RuleDisallowRecursive)
}

func segmentsGen(min, max int) gopter.Gen {
	return gen.IntRange(min, max).FlatMap(func(n any) gopter.Gen {
		return gen.SliceOfN(n.(int), gen.Identifier())
	}, reflect.TypeOf([]string(nil)))
}

func decisionFor(rule Rule) Decision {
	switch rule {
	case RuleAllowPackage, RuleAllowRecursive:
		return Allow
	case RuleDisallowPackage, RuleDisallowRecursive:
		return Disallow
	default:
		return Undecided
	}
}

// A rule installed at any proper prefix decides every extension of that
// prefix, as long as nothing overrides in between.
func TestProperty_RuleInheritance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("descendants inherit the nearest ancestor rule", prop.ForAll(
		func(prefix []string, suffix []string, rule Rule) bool {
			if len(prefix) == 0 {
				return true
			}
			root := NewNode(nil)
			if err := root.AddRule(api.GlobOf(api.AttrPath(prefix)), rule); err != nil {
				return false
			}
			full := append(append(api.AttrPath{}, prefix...), suffix...)
			got, err := root.ApplyRules(full)
			return err == nil && got == decisionFor(rule)
		},
		segmentsGen(1, 4),
		segmentsGen(0, 3),
		ruleGen(),
	))

	properties.Property("paths outside the prefix stay undecided", prop.ForAll(
		func(prefix []string, rule Rule) bool {
			if len(prefix) == 0 {
				return true
			}
			root := NewNode(nil)
			if err := root.AddRule(api.GlobOf(api.AttrPath(prefix)), rule); err != nil {
				return false
			}
			other := api.AttrPath{prefix[0] + "X"}
			got, err := root.ApplyRules(other)
			return err == nil && got == Undecided
		},
		segmentsGen(1, 4),
		ruleGen(),
	))

	properties.TestingRun(t)
}

// Installing a wildcard rule is observationally equivalent to installing
// one concrete rule per system.
func TestProperty_WildcardExpansion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("wildcard equals per-system insertion", prop.ForAll(
		func(rootName string, suffix []string, rule Rule) bool {
			if len(suffix) == 0 {
				return true
			}
			mkGlob := func(system *string) api.AttrPathGlob {
				g := api.AttrPathGlob{api.GlobSegment(rootName), system}
				for i := range suffix {
					g = append(g, &suffix[i])
				}
				return g
			}

			wild := NewNode(nil)
			if err := wild.AddRule(mkGlob(nil), rule); err != nil {
				return false
			}
			explicit := NewNode(nil)
			for _, system := range api.DefaultSystems {
				sys := system
				if err := explicit.AddRule(mkGlob(&sys), rule); err != nil {
					return false
				}
			}
			return wild.Hash() == explicit.Hash()
		},
		gen.Identifier(),
		segmentsGen(1, 3),
		ruleGen(),
	))

	properties.TestingRun(t)
}

// Serializing to the canonical document and parsing back preserves both
// GetRule on every installed path and the hash.
func TestProperty_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical round-trip preserves rules and hash", prop.ForAll(
		func(paths [][]string, rule Rule) bool {
			root := NewNode(nil)
			var installed []api.AttrPath
			for _, p := range paths {
				if len(p) == 0 {
					continue
				}
				attrPath := api.AttrPath(p)
				// Conflicts between generated paths are fine; keep the first.
				if err := root.AddRule(api.GlobOf(attrPath), rule); err == nil {
					installed = append(installed, attrPath)
				}
			}

			doc, err := oj.ParseString(root.Canonical())
			if err != nil {
				return false
			}
			decoded, err := DecodeDocument(doc)
			if err != nil {
				return false
			}
			for _, p := range installed {
				if decoded.GetRule(p) != root.GetRule(p) {
					return false
				}
			}
			return decoded.Hash() == root.Hash()
		},
		gen.SliceOf(segmentsGen(1, 3)),
		ruleGen(),
	))

	properties.TestingRun(t)
}
