// Package pkgdb implements the fingerprint-addressed SQLite cache of
// scraped packages: schema lifecycle, idempotent writes, the done flag,
// the read layer, and the token search index.
package pkgdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sys/unix"

	"github.com/PyGeek03/flox/internal/flake"
	_ "modernc.org/sqlite"
)

// DB is one package database. A writable DB exclusively owns its file for
// its lifetime (advisory flock on a sidecar); read-only instances may open
// the same file concurrently.
type DB struct {
	sql         *sql.DB
	path        string
	fingerprint flake.Fingerprint
	lockedRef   string
	writable    bool
	lockFile    *os.File

	// Search index accumulator: token -> bitmap of Packages.id. Mutations
	// happen in RAM during a scrape; FlushSearchIndex writes them in a
	// single transaction.
	indexMu sync.Mutex
	pending map[string]*roaring.Bitmap
}

// Open opens an existing database read-write by explicit path, taking the
// writer lock. A missing file fails with *NoSuchDatabaseError.
func Open(path string, fingerprint flake.Fingerprint) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &NoSuchDatabaseError{Fingerprint: fingerprint, Path: path}
	}
	return open(path, fingerprint)
}

// OpenFingerprint opens an existing database read-write by fingerprint
// under cacheRoot.
func OpenFingerprint(cacheRoot string, fingerprint flake.Fingerprint) (*DB, error) {
	return Open(flake.DBPath(cacheRoot, fingerprint), fingerprint)
}

// Create opens the database for a locked input under cacheRoot, creating
// the file if absent, and records the locked reference row.
func Create(cacheRoot string, locked flake.LockedFlake) (*DB, error) {
	fingerprint := locked.Fingerprint()
	db, err := open(flake.DBPath(cacheRoot, fingerprint), fingerprint)
	if err != nil {
		return nil, err
	}
	if err := db.writeInput(locked); err != nil {
		_ = db.Close() // best effort
		return nil, err
	}
	return db, nil
}

func open(path string, fingerprint flake.Fingerprint) (*DB, error) {
	lockFile, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		releaseLock(lockFile)
		return nil, fmt.Errorf("open package database %s: %w", path, err)
	}
	// Single writer: one connection keeps transaction state coherent.
	conn.SetMaxOpenConns(1)

	db := &DB{
		sql:         conn,
		path:        path,
		fingerprint: fingerprint,
		writable:    true,
		pending:     make(map[string]*roaring.Bitmap),
	}
	if err := db.init(); err != nil {
		_ = conn.Close() // already failing
		releaseLock(lockFile)
		return nil, err
	}
	db.lockFile = lockFile
	if ref, _, err := db.LoadLockedFlake(); err == nil {
		db.lockedRef = ref
	}
	return db, nil
}

// OpenReadOnly opens an existing database without taking the writer lock.
// The schema version is verified but nothing is written.
func OpenReadOnly(path string, fingerprint flake.Fingerprint) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &NoSuchDatabaseError{Fingerprint: fingerprint, Path: path}
	}
	conn, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open package database %s: %w", path, err)
	}
	db := &DB{sql: conn, path: path, fingerprint: fingerprint}
	if err := db.checkSchemaVersion(); err != nil {
		_ = conn.Close() // already failing
		return nil, err
	}
	if ref, _, err := db.LoadLockedFlake(); err == nil {
		db.lockedRef = ref
	}
	return db, nil
}

// acquireLock takes a non-blocking exclusive flock on a sidecar next to the
// database file. flock is independent of SQLite's own fcntl record locks,
// so it can enforce the one-writer ownership rule without interfering.
func acquireLock(dbPath string) (*os.File, error) {
	f, err := os.OpenFile(dbPath+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close() // lock not held
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
		}
		return nil, fmt.Errorf("lock %s: %w", dbPath, err)
	}
	return f, nil
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN) // released on close anyway
	_ = f.Close()
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Fingerprint returns the database identity.
func (db *DB) Fingerprint() flake.Fingerprint { return db.fingerprint }

// LockedRef returns the locked reference recorded at creation, if any.
func (db *DB) LockedRef() string { return db.lockedRef }

// Close flushes nothing — callers flush the search index explicitly — and
// releases the connection and the writer lock.
func (db *DB) Close() error {
	err := db.sql.Close()
	releaseLock(db.lockFile)
	db.lockFile = nil
	return err
}

// init creates tables if absent, refreshes views on version drift, and
// inserts DbVersions defaults. Tables-schema mismatch is fatal.
func (db *DB) init() error {
	if _, err := db.sql.Exec(sqlTables); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := db.initVersions(); err != nil {
		return err
	}
	if err := db.checkSchemaVersion(); err != nil {
		return err
	}
	return db.updateViews()
}

func (db *DB) initVersions() error {
	for _, row := range [][2]string{
		{versionKeyTables, tablesSchemaVersion},
		{versionKeyViews, viewsSchemaVersion},
	} {
		_, err := db.sql.Exec(
			`INSERT OR IGNORE INTO DbVersions ( name, value ) VALUES ( ?, ? )`,
			row[0], row[1])
		if err != nil {
			return fmt.Errorf("init versions: %w", err)
		}
	}
	return nil
}

func (db *DB) checkSchemaVersion() error {
	stored, err := db.Version(versionKeyTables)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Pre-versioning file; treat as a mismatch the caller can discard.
			return &SchemaMismatchError{Stored: "", Expected: tablesSchemaVersion}
		}
		return err
	}
	if stored != tablesSchemaVersion {
		return &SchemaMismatchError{Stored: stored, Expected: tablesSchemaVersion}
	}
	return nil
}

// updateViews recreates views when the stored views version differs from
// the code's, leaving table rows untouched.
func (db *DB) updateViews() error {
	stored, err := db.Version(versionKeyViews)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if stored != viewsSchemaVersion {
		if _, err := db.sql.Exec(sqlDropViews); err != nil {
			return fmt.Errorf("drop views: %w", err)
		}
	}
	if _, err := db.sql.Exec(sqlViews); err != nil {
		return fmt.Errorf("create views: %w", err)
	}
	_, err = db.sql.Exec(
		`INSERT OR REPLACE INTO DbVersions ( name, value ) VALUES ( ?, ? )`,
		versionKeyViews, viewsSchemaVersion)
	if err != nil {
		return fmt.Errorf("update views version: %w", err)
	}
	return nil
}

// writeInput records the locked reference row; the fingerprint doubles as
// the database identity.
func (db *DB) writeInput(locked flake.LockedFlake) error {
	_, err := db.sql.Exec(
		`INSERT OR REPLACE INTO LockedFlake ( fingerprint, lockedRef, lockedRefAttrs )
		 VALUES ( ?, ?, ? )`,
		db.fingerprint.String(), locked.LockedRef, locked.AttrsJSON())
	if err != nil {
		return fmt.Errorf("write locked input: %w", err)
	}
	return nil
}

// LoadLockedFlake reads the locked reference row.
func (db *DB) LoadLockedFlake() (lockedRef, attrsJSON string, err error) {
	err = db.sql.QueryRow(
		`SELECT lockedRef, lockedRefAttrs FROM LockedFlake LIMIT 1`,
	).Scan(&lockedRef, &attrsJSON)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("load locked input: %w", err)
	}
	return lockedRef, attrsJSON, nil
}

// Version reads one DbVersions row.
func (db *DB) Version(name string) (string, error) {
	var value string
	err := db.sql.QueryRow(`SELECT value FROM DbVersions WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("db version %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("db version %s: %w", name, err)
	}
	return value, nil
}

// SetVersion writes one DbVersions row.
func (db *DB) SetVersion(name, value string) error {
	_, err := db.sql.Exec(
		`INSERT OR REPLACE INTO DbVersions ( name, value ) VALUES ( ?, ? )`, name, value)
	if err != nil {
		return fmt.Errorf("set db version %s: %w", name, err)
	}
	return nil
}

// RulesHash returns the recorded scrape-rules hash, or "" when none is set.
func (db *DB) RulesHash() (string, error) {
	hash, err := db.Version(versionKeyRulesHash)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return hash, err
}

// SetRulesHash records the hash of the rules tree used for scraping.
func (db *DB) SetRulesHash(hash string) error {
	return db.SetVersion(versionKeyRulesHash, hash)
}
