package pkgdb

import (
	"errors"
	"fmt"

	"github.com/PyGeek03/flox/internal/flake"
)

// ErrNotFound reports a lookup miss in the cache.
var ErrNotFound = errors.New("not found in package database")

// NoSuchDatabaseError reports a read-write or read-only open against a
// database file that does not exist.
type NoSuchDatabaseError struct {
	Fingerprint flake.Fingerprint
	Path        string
}

func (e *NoSuchDatabaseError) Error() string {
	return fmt.Sprintf("no package database for fingerprint %s at %s", e.Fingerprint, e.Path)
}

// SchemaMismatchError reports a tables-schema version that disagrees with
// the code's expectation. The caller recovers by discarding the file.
type SchemaMismatchError struct {
	Stored   string
	Expected string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("package database schema version %q does not match expected %q", e.Stored, e.Expected)
}

// NotDerivationError reports AddPackage called with checkDrv on a cursor
// that is not a derivation.
type NotDerivationError struct {
	AttrName string
}

func (e *NotDerivationError) Error() string {
	return fmt.Sprintf("attribute `%s' is not a derivation", e.AttrName)
}

// ErrLocked reports that another process holds the writer lock on the
// database file.
var ErrLocked = errors.New("package database is locked by another writer")
