package pkgdb

import (
	"database/sql"
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/PyGeek03/flox/api"
)

// PackageRow is one denormalized package as exposed by the v_Packages view.
type PackageRow struct {
	ID               int64    `json:"id"`
	AttrPath         string   `json:"attrPath"`
	AttrName         string   `json:"attrName"`
	Name             string   `json:"name"`
	Pname            string   `json:"pname"`
	Version          string   `json:"version"`
	License          *string  `json:"license"`
	Outputs          []string `json:"outputs"`
	OutputsToInstall []string `json:"outputsToInstall"`
	Broken           *bool    `json:"broken"`
	Unfree           *bool    `json:"unfree"`
	System           string   `json:"system"`
	Description      *string  `json:"description"`
}

const packageRowColumns = `id, attrPath, attrName, name, pname, version, license,
       outputs, outputsToInstall, broken, unfree, system, description`

func scanPackageRow(scan func(...any) error) (*PackageRow, error) {
	var (
		row              PackageRow
		license          sql.NullString
		description      sql.NullString
		broken           sql.NullBool
		unfree           sql.NullBool
		outputs          string
		outputsToInstall string
	)
	err := scan(&row.ID, &row.AttrPath, &row.AttrName, &row.Name, &row.Pname,
		&row.Version, &license, &outputs, &outputsToInstall, &broken, &unfree,
		&row.System, &description)
	if err != nil {
		return nil, err
	}
	if license.Valid {
		row.License = &license.String
	}
	if description.Valid {
		row.Description = &description.String
	}
	if broken.Valid {
		row.Broken = &broken.Bool
	}
	if unfree.Valid {
		row.Unfree = &unfree.Bool
	}
	if row.Outputs, err = decodeStringList(outputs); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	if row.OutputsToInstall, err = decodeStringList(outputsToInstall); err != nil {
		return nil, fmt.Errorf("decode outputsToInstall: %w", err)
	}
	return &row, nil
}

func decodeStringList(data string) ([]string, error) {
	value, err := oj.ParseString(data)
	if err != nil {
		return nil, err
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("want JSON array, got %T", value)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("want string element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// GetAttrSetID resolves a path through AttrSets without creating rows.
// Returns ErrNotFound when any segment is missing.
func (db *DB) GetAttrSetID(path api.AttrPath) (int64, error) {
	var id int64
	for _, attrName := range path {
		err := db.sql.QueryRow(
			`SELECT id FROM AttrSets WHERE parent = ? AND name = ?`, id, attrName,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("attribute set `%s': %w", path, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("lookup attribute set `%s': %w", path, err)
		}
	}
	return id, nil
}

// IsDone reports the done flag of the AttrSets row addressed by path.
func (db *DB) IsDone(path api.AttrPath) (bool, error) {
	id, err := db.GetAttrSetID(path)
	if err != nil {
		return false, err
	}
	var done bool
	if err := db.sql.QueryRow(`SELECT done FROM AttrSets WHERE id = ?`, id).Scan(&done); err != nil {
		return false, fmt.Errorf("read done flag: %w", err)
	}
	return done, nil
}

// ResolvePath returns the package at an exact attribute path, or
// ErrNotFound.
func (db *DB) ResolvePath(path api.AttrPath) (*PackageRow, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("resolve empty path: %w", ErrNotFound)
	}
	parent, err := db.GetAttrSetID(path.Parent())
	if err != nil {
		return nil, err
	}
	row, err := scanPackageRow(db.sql.QueryRow(
		`SELECT `+packageRowColumns+` FROM v_Packages WHERE parent = ? AND attrName = ?`,
		parent, path[len(path)-1],
	).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("package `%s': %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve `%s': %w", path, err)
	}
	return row, nil
}

// ListPackages returns every package under prefix (the whole database for
// an empty prefix), ordered by attribute path for stable output.
func (db *DB) ListPackages(prefix api.AttrPath) ([]*PackageRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(prefix) == 0 {
		rows, err = db.sql.Query(
			`SELECT ` + packageRowColumns + ` FROM v_Packages ORDER BY attrPath`)
	} else {
		var prefixID int64
		prefixID, err = db.GetAttrSetID(prefix)
		if err != nil {
			return nil, err
		}
		rows, err = db.sql.Query(
			`WITH RECURSIVE Sub ( id ) AS (
			   SELECT ?
			   UNION ALL
			   SELECT a.id FROM AttrSets a JOIN Sub s ON a.parent = s.id
			 )
			 SELECT `+packageRowColumns+` FROM v_Packages
			 WHERE parent IN ( SELECT id FROM Sub )
			 ORDER BY attrPath`, prefixID)
	}
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []*PackageRow
	for rows.Next() {
		row, err := scanPackageRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list packages: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return out, nil
}
