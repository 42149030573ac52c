package rules

import (
	_ "embed"
	"fmt"
)

//go:embed default-rules.json
var defaultRulesJSON []byte

// Default is the process-wide default rules tree, parsed once from the
// embedded document at package initialization and read-only afterwards.
var Default = mustDefault()

func mustDefault() *Node {
	raw, err := ParseRawJSON(defaultRulesJSON)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded default rules are invalid: %v", err))
	}
	root, err := FromRaw(raw, nil)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded default rules are invalid: %v", err))
	}
	return root
}
