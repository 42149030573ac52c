// Package config loads the optional pkgdb.hcl configuration file. The file
// supplies defaults for the cache root and the rules document; flags and the
// environment (handled by the CLI, not here) override it. A system set is
// decoded as well, but no command applies it.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config mirrors the pkgdb.hcl schema.
type Config struct {
	// CacheRoot is the directory holding fingerprint-named databases.
	CacheRoot string `hcl:"cache_root,optional"`
	// RulesFile points at a JSON or YAML rules document.
	RulesFile string `hcl:"rules_file,optional"`
	// Systems is decoded from the file only. Rules are built without it, so
	// wildcard expansion always uses api.DefaultSystems.
	Systems []string `hcl:"systems,optional"`
}

// Load decodes an HCL config file. A missing file is not an error: the
// zero Config is returned so callers fall through to flags and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}
