package pkgdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/PyGeek03/flox/api"
	"github.com/PyGeek03/flox/internal/eval"
)

// AddOrGetAttrSetID returns the AttrSets id for attrName under parent,
// inserting a row with done=0 if missing. parent 0 means no parent.
// Idempotent: repeated calls return the same id and change nothing.
func (db *DB) AddOrGetAttrSetID(attrName string, parent int64) (int64, error) {
	var id int64
	err := db.sql.QueryRow(
		`SELECT id FROM AttrSets WHERE parent = ? AND name = ?`, parent, attrName,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup attrset %s: %w", attrName, err)
	}
	res, err := db.sql.Exec(
		`INSERT INTO AttrSets ( parent, name, done ) VALUES ( ?, ?, 0 )`, parent, attrName)
	if err != nil {
		return 0, fmt.Errorf("insert attrset %s: %w", attrName, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert attrset %s: %w", attrName, err)
	}
	return id, nil
}

// AddOrGetAttrSetPathID folds a path through AddOrGetAttrSetID and returns
// the id of the final segment; the empty path yields 0.
func (db *DB) AddOrGetAttrSetPathID(path api.AttrPath) (int64, error) {
	var (
		id  int64
		err error
	)
	for _, attrName := range path {
		id, err = db.AddOrGetAttrSetID(attrName, id)
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

// AddOrGetDescriptionID interns a description string and returns its id.
func (db *DB) AddOrGetDescriptionID(description string) (int64, error) {
	return addOrGetDescriptionID(db.sql, description)
}

// execer covers *sql.DB and *sql.Tx so description interning can run both
// standalone and inside the AddPackage transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func addOrGetDescriptionID(q execer, description string) (int64, error) {
	var id int64
	err := q.QueryRow(
		`SELECT id FROM Descriptions WHERE description = ?`, description,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup description: %w", err)
	}
	res, err := q.Exec(`INSERT INTO Descriptions ( description ) VALUES ( ? )`, description)
	if err != nil {
		return 0, fmt.Errorf("insert description: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert description: %w", err)
	}
	return id, nil
}

// drvFields is the slice of a derivation read for one Packages row.
type drvFields struct {
	name             string
	pname            string
	version          string
	system           string
	outputs          []string
	outputsToInstall []string
	license          *string
	description      *string
	broken           *bool
	unfree           *bool
}

// readDrvFields scrapes the package columns from a derivation cursor.
// Missing meta fields stay nil; missing required fields are hard errors.
func readDrvFields(cur eval.Cursor) (*drvFields, error) {
	f := &drvFields{}
	var err error
	if f.pname, err = cur.GetString("pname"); err != nil {
		return nil, fmt.Errorf("read pname: %w", err)
	}
	if f.version, err = cur.GetString("version"); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if f.system, err = cur.GetString("system"); err != nil {
		return nil, fmt.Errorf("read system: %w", err)
	}
	if f.outputs, err = cur.GetStringList("outputs"); err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	if f.outputsToInstall, err = cur.GetStringList("outputsToInstall"); err != nil {
		return nil, fmt.Errorf("read outputsToInstall: %w", err)
	}
	if f.name, err = cur.GetString("name"); err != nil {
		if !errors.Is(err, eval.ErrNoSuchAttr) {
			return nil, fmt.Errorf("read name: %w", err)
		}
		f.name = f.pname + "-" + f.version
	}

	meta, err := cur.GetAttr("meta")
	if errors.Is(err, eval.ErrNoSuchAttr) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	if s, err := meta.GetString("description"); err == nil {
		f.description = &s
	} else if !errors.Is(err, eval.ErrNoSuchAttr) {
		return nil, fmt.Errorf("read meta.description: %w", err)
	}
	if s, err := meta.GetString("license"); err == nil {
		f.license = &s
	} else if !errors.Is(err, eval.ErrNoSuchAttr) {
		return nil, fmt.Errorf("read meta.license: %w", err)
	}
	if b, err := meta.GetBool("broken"); err == nil {
		f.broken = &b
	} else if !errors.Is(err, eval.ErrNoSuchAttr) {
		return nil, fmt.Errorf("read meta.broken: %w", err)
	}
	if b, err := meta.GetBool("unfree"); err == nil {
		f.unfree = &b
	} else if !errors.Is(err, eval.ErrNoSuchAttr) {
		return nil, fmt.Errorf("read meta.unfree: %w", err)
	}
	return f, nil
}

// AddPackage records one derivation as a Packages row under parent.
// The row and its interned description are one atomic unit. On an existing
// (parent, attrName) row: replace=false returns the existing id unchanged,
// replace=true overwrites every column.
func (db *DB) AddPackage(parent int64, attrName string, cur eval.Cursor, replace, checkDrv bool) (int64, error) {
	if checkDrv {
		isDrv, err := cur.IsDerivation()
		if err != nil {
			return 0, fmt.Errorf("check derivation `%s': %w", attrName, err)
		}
		if !isDrv {
			return 0, &NotDerivationError{AttrName: attrName}
		}
	}

	fields, err := readDrvFields(cur)
	if err != nil {
		return 0, fmt.Errorf("package `%s': %w", attrName, err)
	}

	tx, err := db.sql.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin add package: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op once committed

	var existing int64
	err = tx.QueryRow(
		`SELECT id FROM Packages WHERE parent = ? AND attrName = ?`, parent, attrName,
	).Scan(&existing)
	switch {
	case err == nil && !replace:
		return existing, tx.Commit()
	case err != nil && err != sql.ErrNoRows:
		return 0, fmt.Errorf("lookup package `%s': %w", attrName, err)
	}

	var descriptionID any
	if fields.description != nil {
		id, derr := addOrGetDescriptionID(tx, *fields.description)
		if derr != nil {
			return 0, derr
		}
		descriptionID = id
	}

	args := []any{
		fields.name, fields.pname, fields.version, nullableStr(fields.license),
		oj.JSON(fields.outputs), oj.JSON(fields.outputsToInstall),
		nullableBool(fields.broken), nullableBool(fields.unfree),
		descriptionID, fields.system,
	}

	var id int64
	if err == nil { // replace
		args = append(args, existing)
		_, uerr := tx.Exec(
			`UPDATE Packages SET name = ?, pname = ?, version = ?, license = ?,
			        outputs = ?, outputsToInstall = ?, broken = ?, unfree = ?,
			        descriptionId = ?, system = ?
			 WHERE id = ?`, args...)
		if uerr != nil {
			return 0, fmt.Errorf("replace package `%s': %w", attrName, uerr)
		}
		id = existing
	} else {
		args = append([]any{parent, attrName}, args...)
		res, ierr := tx.Exec(
			`INSERT INTO Packages ( parent, attrName, name, pname, version, license,
			        outputs, outputsToInstall, broken, unfree, descriptionId, system )
			 VALUES ( ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? )`, args...)
		if ierr != nil {
			return 0, fmt.Errorf("insert package `%s': %w", attrName, ierr)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("insert package `%s': %w", attrName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit package `%s': %w", attrName, err)
	}

	db.indexPackage(id, attrName, fields.pname, fields.description)
	return id, nil
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// SetPrefixDone updates the done flag for the AttrSets row prefixID and
// every descendant row, as one atomic statement.
func (db *DB) SetPrefixDone(prefixID int64, done bool) error {
	_, err := db.sql.Exec(
		`WITH RECURSIVE Sub ( id ) AS (
		   SELECT ?
		   UNION ALL
		   SELECT a.id FROM AttrSets a JOIN Sub s ON a.parent = s.id
		 )
		 UPDATE AttrSets SET done = ? WHERE id IN ( SELECT id FROM Sub )`,
		prefixID, done)
	if err != nil {
		return fmt.Errorf("set prefix done: %w", err)
	}
	return nil
}

// SetPrefixPathDone is the path form of SetPrefixDone; the prefix is
// resolved (or created) via AddOrGetAttrSetPathID.
func (db *DB) SetPrefixPathDone(prefix api.AttrPath, done bool) error {
	id, err := db.AddOrGetAttrSetPathID(prefix)
	if err != nil {
		return err
	}
	return db.SetPrefixDone(id, done)
}
