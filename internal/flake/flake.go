// Package flake models the locked source reference whose content-addressed
// fingerprint names a package database.
package flake

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// Fingerprint is the 256-bit digest identifying a locked input and the
// database built from it.
type Fingerprint [sha256.Size]byte

// String renders the fingerprint as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint inverts Fingerprint.String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(raw) != len(f) {
		return f, fmt.Errorf("parse fingerprint: want %d bytes, got %d", len(f), len(raw))
	}
	copy(f[:], raw)
	return f, nil
}

// LockedFlake is a source reference pinned to an immutable revision.
type LockedFlake struct {
	// LockedRef is the display form of the pinned reference.
	LockedRef string
	// Attrs are the reference's locked attributes (type, url, narHash, ...).
	Attrs map[string]any
}

// Fingerprint derives the database identity: SHA-256 over the canonical
// (sorted-key) JSON of the locked attributes. Equal locked inputs, equal
// fingerprint, regardless of attribute ordering.
func (l LockedFlake) Fingerprint() Fingerprint {
	canonical := oj.JSON(l.Attrs, &ojg.Options{Sort: true})
	return sha256.Sum256([]byte(canonical))
}

// AttrsJSON renders the locked attributes for storage.
func (l LockedFlake) AttrsJSON() string {
	return oj.JSON(l.Attrs, &ojg.Options{Sort: true})
}

// DBPath derives the database file path for a fingerprint under cacheRoot.
// The caller supplies cacheRoot; nothing here reads the environment.
func DBPath(cacheRoot string, fp Fingerprint) string {
	return filepath.Join(cacheRoot, fp.String()+".sqlite")
}
