package pkgdb

import (
	"bytes"
	"database/sql"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// The search index maps lowercased tokens drawn from attribute names,
// pnames, and descriptions to bitmaps of Packages.id. Tokens accumulate in
// RAM while a scrape runs; FlushSearchIndex merges them into the
// SearchIndex table in a single transaction. This keeps the write path at
// one read and one write per distinct token instead of writes per package.

// indexPackage tokenizes the searchable fields of a package and adds its id
// to the pending bitmaps.
func (db *DB) indexPackage(id int64, attrName, pname string, description *string) {
	if db.pending == nil {
		return
	}
	text := attrName + " " + pname
	if description != nil {
		text += " " + *description
	}

	db.indexMu.Lock()
	defer db.indexMu.Unlock()
	for _, token := range tokenize(text) {
		bm, ok := db.pending[token]
		if !ok {
			bm = roaring.New()
			db.pending[token] = bm
		}
		bm.Add(uint32(id))
	}
}

// tokenize splits on non-alphanumeric runes, lowercases, and drops
// single-rune tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, tok := range fields {
		if len(tok) < 2 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// FlushSearchIndex writes all pending token bitmaps, merging with any
// bitmaps already on disk so re-scrapes stay idempotent. One transaction;
// safe to call with nothing pending.
func (db *DB) FlushSearchIndex() error {
	db.indexMu.Lock()
	pending := db.pending
	db.pending = make(map[string]*roaring.Bitmap)
	db.indexMu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	tx, err := db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin index flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op once committed

	selStmt, err := tx.Prepare(`SELECT bitmap FROM SearchIndex WHERE token = ?`)
	if err != nil {
		return fmt.Errorf("prepare index select: %w", err)
	}
	defer func() { _ = selStmt.Close() }() // safe to ignore

	insStmt, err := tx.Prepare(`INSERT OR REPLACE INTO SearchIndex ( token, bitmap ) VALUES ( ?, ? )`)
	if err != nil {
		return fmt.Errorf("prepare index insert: %w", err)
	}
	defer func() { _ = insStmt.Close() }() // safe to ignore

	var buf bytes.Buffer
	for token, bm := range pending {
		var existing []byte
		err := selStmt.QueryRow(token).Scan(&existing)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read index token %q: %w", token, err)
		}
		if existing != nil {
			prev := roaring.New()
			if err := prev.UnmarshalBinary(existing); err != nil {
				return fmt.Errorf("unmarshal index token %q: %w", token, err)
			}
			bm.Or(prev)
		}
		buf.Reset()
		if _, err := bm.WriteTo(&buf); err != nil {
			return fmt.Errorf("serialize index token %q: %w", token, err)
		}
		if _, err := insStmt.Exec(token, buf.Bytes()); err != nil {
			return fmt.Errorf("write index token %q: %w", token, err)
		}
	}

	return tx.Commit()
}

// Search intersects the bitmaps of every query token and returns the
// matching packages ordered by attribute path. An unknown token means no
// matches; an empty query means no matches.
func (db *DB) Search(query string) ([]*PackageRow, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var acc *roaring.Bitmap
	for _, token := range tokens {
		var blob []byte
		err := db.sql.QueryRow(`SELECT bitmap FROM SearchIndex WHERE token = ?`, token).Scan(&blob)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("search token %q: %w", token, err)
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("unmarshal index token %q: %w", token, err)
		}
		if acc == nil {
			acc = bm
		} else {
			acc.And(bm)
		}
		if acc.IsEmpty() {
			return nil, nil
		}
	}

	ids := acc.ToArray()
	args := make([]any, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
		placeholders[i] = "?"
	}
	rows, err := db.sql.Query(
		`SELECT `+packageRowColumns+` FROM v_Packages WHERE id IN (`+
			strings.Join(placeholders, ",")+`) ORDER BY attrPath`, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []*PackageRow
	for rows.Next() {
		row, err := scanPackageRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("search scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	return out, nil
}
