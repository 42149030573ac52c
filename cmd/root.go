// Package cmd implements the pkgdb command line interface.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/PyGeek03/flox/internal/config"
	"github.com/PyGeek03/flox/internal/flake"
	"github.com/PyGeek03/flox/internal/pkgdb"
)

var (
	configPath string
	cacheDir   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "pkgdb",
	Short:         "pkgdb scrapes package attribute trees into queryable SQLite databases",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		if logger, err = zc.Build(); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync() // stderr sync errors are expected on some platforms
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pkgdb.hcl", "path to the HCL config file")
	rootCmd.PersistentFlags().StringVarP(&cacheDir, "cachedir", "c", "", "directory holding package databases")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// cacheRoot resolves the database directory: flag, then PKGDB_CACHEDIR,
// then config file, then ~/.cache/pkgdb. The environment is consulted here
// and nowhere deeper.
func cacheRoot() (string, error) {
	if cacheDir != "" {
		return cacheDir, nil
	}
	if env := os.Getenv("PKGDB_CACHEDIR"); env != "" {
		return env, nil
	}
	if cfg != nil && cfg.CacheRoot != "" {
		return cfg.CacheRoot, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(home, ".cache", "pkgdb"), nil
}

// openDatabase opens an existing database read-only from either an explicit
// file path or a fingerprint looked up under the cache root.
func openDatabase(arg string) (*pkgdb.DB, error) {
	if _, err := os.Stat(arg); err == nil {
		return pkgdb.OpenReadOnly(arg, flake.Fingerprint{})
	}
	fp, err := flake.ParseFingerprint(arg)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a database file nor a fingerprint", arg)
	}
	root, err := cacheRoot()
	if err != nil {
		return nil, err
	}
	return pkgdb.OpenReadOnly(flake.DBPath(root, fp), fp)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
