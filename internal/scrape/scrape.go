// Package scrape implements the breadth-first traversal that applies a
// rules tree to an evaluator's attribute tree and records the verdicts in
// the package database.
package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/PyGeek03/flox/api"
	"github.com/PyGeek03/flox/internal/eval"
	"github.com/PyGeek03/flox/internal/pkgdb"
	"github.com/PyGeek03/flox/internal/rules"
)

// Target is one unit of work: an attribute path, the cursor positioned
// there, and the AttrSets row id for that path (0 for the tree root).
type Target struct {
	Path     api.AttrPath
	Cursor   eval.Cursor
	ParentID int64
}

// Todos is the FIFO of pending targets. Breadth-first order keeps partial
// results a coherent top-down slice for concurrent readers.
type Todos struct {
	items []Target
}

func (q *Todos) Push(t Target) { q.items = append(q.items, t) }

func (q *Todos) Pop() (Target, bool) {
	if len(q.items) == 0 {
		return Target{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *Todos) Len() int { return len(q.items) }

// systemDepth is the tree level of system names: <root>.<system>.<rest>.
// At or above this level recursion is implicit — the engine never iterates
// unknown system names itself, it just descends through whatever prefix it
// was pointed at.
const systemDepth = 2

// Scraper walks one attribute tree into one database. Single-writer with
// respect to its database file; the rules tree is read-only and shareable.
type Scraper struct {
	DB    *pkgdb.DB
	Rules *rules.Node
	Log   *zap.Logger
}

// New returns a Scraper. A nil logger is replaced with zap.NewNop so
// library use stays silent.
func New(db *pkgdb.DB, rulesTree *rules.Node, log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	if rulesTree == nil {
		rulesTree = rules.Default
	}
	return &Scraper{DB: db, Rules: rulesTree, Log: log}
}

// Scrape traverses the tree rooted at cursor under the attribute path root
// and records packages. On success the root prefix is closed: every
// AttrSets row at or below it has done=1. Cancellation is honored between
// targets; a cancelled scrape leaves valid rows and conservative done
// flags.
func (s *Scraper) Scrape(ctx context.Context, root api.AttrPath, cursor eval.Cursor) error {
	rootID, err := s.DB.AddOrGetAttrSetPathID(root)
	if err != nil {
		return err
	}

	todos := &Todos{}
	todos.Push(Target{Path: root, Cursor: cursor, ParentID: rootID})

	processed := 0
	for {
		target, ok := todos.Pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scrape cancelled at `%s': %w", target.Path, err)
		}
		if err := s.processTarget(target, todos); err != nil {
			return err
		}
		processed++
		if processed%512 == 0 {
			s.Log.Info("scrape progress",
				zap.Int("processed", processed),
				zap.Int("queued", todos.Len()))
		}
	}

	if err := s.DB.SetPrefixDone(rootID, true); err != nil {
		return err
	}
	s.Log.Info("scrape complete",
		zap.String("prefix", root.String()),
		zap.Int("targets", processed))
	return nil
}

// processTarget applies the rules to every child of one cursor, recording
// packages, enqueueing subtrees, and skipping the rest.
func (s *Scraper) processTarget(target Target, todos *Todos) error {
	children, err := target.Cursor.Children()
	if err != nil {
		return fmt.Errorf("evaluate `%s': %w", target.Path, err)
	}

	for _, child := range children {
		childPath := target.Path.Child(child.Name)

		decision, err := s.Rules.ApplyRules(childPath)
		if err != nil {
			return err
		}

		switch decision {
		case rules.Disallow:
			s.Log.Debug("rule skip", zap.String("path", childPath.String()))

		case rules.Allow:
			if err := s.addAllowed(target, child, childPath, todos); err != nil {
				return err
			}

		case rules.Undecided:
			if err := s.addUndecided(target, child, childPath, todos); err != nil {
				return err
			}
		}
	}
	return nil
}

// addAllowed handles a child with an explicit allow somewhere on its path.
// The package-vs-subtree distinction comes from the evaluator's derivation
// check; AllowPackage on a non-derivation is a user error surfaced as a
// skip with a diagnostic from the exact node's rule.
func (s *Scraper) addAllowed(target Target, child eval.Child, childPath api.AttrPath, todos *Todos) error {
	isDrv, err := child.Cursor.IsDerivation()
	if err != nil {
		s.Log.Warn("child evaluation failed, skipping",
			zap.String("path", childPath.String()), zap.Error(err))
		return nil
	}
	if isDrv {
		_, err := s.DB.AddPackage(target.ParentID, child.Name, child.Cursor, false, false)
		return err
	}
	if s.Rules.GetRule(childPath) == rules.RuleAllowPackage {
		s.Log.Warn("attribute allowed as package but is not a derivation, skipping",
			zap.String("path", childPath.String()))
		return nil
	}
	return s.enqueue(target, child, childPath, todos)
}

// addUndecided defers to the evaluator: derivations are recorded, subtrees
// descend when recursion is implicit at this level or hinted by
// recurseForDerivations.
func (s *Scraper) addUndecided(target Target, child eval.Child, childPath api.AttrPath, todos *Todos) error {
	isDrv, err := child.Cursor.IsDerivation()
	if err != nil {
		s.Log.Warn("child evaluation failed, skipping",
			zap.String("path", childPath.String()), zap.Error(err))
		return nil
	}
	if isDrv {
		_, err := s.DB.AddPackage(target.ParentID, child.Name, child.Cursor, false, false)
		return err
	}
	recurse := len(childPath) <= systemDepth
	if !recurse {
		recurse, err = recurseHint(child.Cursor)
		if err != nil {
			s.Log.Warn("child evaluation failed, skipping",
				zap.String("path", childPath.String()), zap.Error(err))
			return nil
		}
	}
	if !recurse {
		s.Log.Debug("no recurse hint, skipping", zap.String("path", childPath.String()))
		return nil
	}
	return s.enqueue(target, child, childPath, todos)
}

// enqueue allocates the child's AttrSets row and defers its subtree.
// Allocating before pushing keeps the invariant that a parent row exists
// before any row beneath it.
func (s *Scraper) enqueue(target Target, child eval.Child, childPath api.AttrPath, todos *Todos) error {
	childID, err := s.DB.AddOrGetAttrSetID(child.Name, target.ParentID)
	if err != nil {
		return err
	}
	todos.Push(Target{Path: childPath, Cursor: child.Cursor, ParentID: childID})
	return nil
}

// recurseHint reads the attribute set's recurseForDerivations flag; absence
// means false.
func recurseHint(cur eval.Cursor) (bool, error) {
	hint, err := cur.GetBool("recurseForDerivations")
	if errors.Is(err, eval.ErrNoSuchAttr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hint, nil
}
