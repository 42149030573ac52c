package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PyGeek03/flox/api"
	"github.com/PyGeek03/flox/internal/eval"
	"github.com/PyGeek03/flox/internal/flake"
	"github.com/PyGeek03/flox/internal/pkgdb"
	"github.com/PyGeek03/flox/internal/rules"
	"github.com/PyGeek03/flox/internal/scrape"
)

var scrapeRulesPath string

var scrapeCmd = &cobra.Command{
	Use:   "scrape [tree.json] [attrpath]",
	Short: "Scrape an attribute tree into a package database",
	Long: `Scrape walks the JSON attribute tree under the given attribute path
(e.g. legacyPackages.x86_64-linux) and records every package the scrape
rules admit. The database is created under the cache directory, named by
the fingerprint of the input file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		treePath, attr := args[0], args[1]

		prefix, err := api.ParseAttrPath(attr)
		if err != nil {
			return err
		}

		rulesTree, err := loadRules()
		if err != nil {
			return err
		}

		tree, err := eval.LoadTree(treePath)
		if err != nil {
			return err
		}
		cursor, err := descend(tree, prefix)
		if err != nil {
			return err
		}

		locked, err := lockTreeFile(treePath)
		if err != nil {
			return err
		}

		root, err := cacheRoot()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}

		db, err := openForScrape(root, locked, rulesTree.Hash())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }() // second close after the explicit one is a no-op error

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		scraper := scrape.New(db, rulesTree, logger)
		if err := scraper.Scrape(ctx, prefix, cursor); err != nil {
			return err
		}
		if err := db.FlushSearchIndex(); err != nil {
			return err
		}
		if err := db.Close(); err != nil {
			return err
		}

		fmt.Println(db.Path())
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeRulesPath, "rules", "r", "", "path to a scrape rules document (JSON or YAML)")
	rootCmd.AddCommand(scrapeCmd)
}

// loadRules picks the rules tree: flag, then config file, then the built-in
// default rules.
func loadRules() (*rules.Node, error) {
	path := scrapeRulesPath
	if path == "" && cfg != nil {
		path = cfg.RulesFile
	}
	if path == "" {
		return rules.Default, nil
	}
	return rules.FromFile(path)
}

// descend walks the tree cursor down to the requested prefix.
func descend(cursor eval.Cursor, path api.AttrPath) (eval.Cursor, error) {
	for _, name := range path {
		next, err := cursor.GetAttr(name)
		if err != nil {
			return nil, fmt.Errorf("descend to `%s': %w", path, err)
		}
		cursor = next
	}
	return cursor, nil
}

// lockTreeFile derives the locked input for a tree file: the absolute path
// as the reference, content-addressed by the file's SHA-256.
func lockTreeFile(path string) (flake.LockedFlake, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return flake.LockedFlake{}, fmt.Errorf("resolve tree path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return flake.LockedFlake{}, fmt.Errorf("read tree: %w", err)
	}
	sum := sha256.Sum256(data)
	return flake.LockedFlake{
		LockedRef: "path:" + abs,
		Attrs: map[string]any{
			"type":    "path",
			"path":    abs,
			"narHash": "sha256-" + hex.EncodeToString(sum[:]),
		},
	}, nil
}

// openForScrape creates or opens the database for the locked input. A
// tables-schema mismatch or a rules-hash change discards the file and
// starts over; the cache is derived state.
func openForScrape(root string, locked flake.LockedFlake, rulesHash string) (*pkgdb.DB, error) {
	db, err := pkgdb.Create(root, locked)
	var mismatch *pkgdb.SchemaMismatchError
	if errors.As(err, &mismatch) {
		logger.Warn("discarding package database with stale schema",
			zap.String("stored", mismatch.Stored),
			zap.String("expected", mismatch.Expected))
		if err := discard(root, locked); err != nil {
			return nil, err
		}
		db, err = pkgdb.Create(root, locked)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	stored, err := db.RulesHash()
	if err != nil {
		_ = db.Close() // already failing
		return nil, err
	}
	if stored != "" && stored != rulesHash {
		logger.Warn("discarding package database scraped under different rules",
			zap.String("path", db.Path()))
		if err := db.Close(); err != nil {
			return nil, err
		}
		if err := discard(root, locked); err != nil {
			return nil, err
		}
		if db, err = pkgdb.Create(root, locked); err != nil {
			return nil, err
		}
	}
	if err := db.SetRulesHash(rulesHash); err != nil {
		_ = db.Close() // already failing
		return nil, err
	}
	return db, nil
}

func discard(root string, locked flake.LockedFlake) error {
	path := flake.DBPath(root, locked.Fingerprint())
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w", path, err)
	}
	return nil
}
