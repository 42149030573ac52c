package pkgdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PyGeek03/flox/api"
	"github.com/PyGeek03/flox/internal/eval"
)

// drvAttrs builds a derivation node for a TreeCursor fixture.
func drvAttrs(pname, version, description string) map[string]any {
	attrs := map[string]any{
		"type":             "derivation",
		"name":             pname + "-" + version,
		"pname":            pname,
		"version":          version,
		"system":           "x86_64-linux",
		"outputs":          []any{"out"},
		"outputsToInstall": []any{"out"},
	}
	if description != "" {
		attrs["meta"] = map[string]any{
			"description": description,
			"license":     "MIT",
			"broken":      false,
			"unfree":      false,
		}
	}
	return attrs
}

func drvCursor(pname, version, description string) eval.Cursor {
	return eval.NewTreeCursor(drvAttrs(pname, version, description))
}

func (db *DB) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.sql.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestAddOrGetAttrSetID_Idempotent(t *testing.T) {
	db := createTestDB(t)

	id, err := db.AddOrGetAttrSetID("legacyPackages", 0)
	require.NoError(t, err)
	require.NotZero(t, id)

	for range 3 {
		again, err := db.AddOrGetAttrSetID("legacyPackages", 0)
		require.NoError(t, err)
		assert.Equal(t, id, again)
	}
	assert.Equal(t, 1, db.countRows(t, "AttrSets"))

	// Same name under a different parent is a distinct row.
	other, err := db.AddOrGetAttrSetID("legacyPackages", id)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, db.countRows(t, "AttrSets"))
}

func TestAddOrGetAttrSetPathID(t *testing.T) {
	db := createTestDB(t)

	id, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux", "python3Packages"})
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, 3, db.countRows(t, "AttrSets"))

	again, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux", "python3Packages"})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 3, db.countRows(t, "AttrSets"))

	// The empty path is the virtual root.
	zero, err := db.AddOrGetAttrSetPathID(nil)
	require.NoError(t, err)
	assert.Zero(t, zero)
}

func TestAddOrGetDescriptionID_Deduplicates(t *testing.T) {
	db := createTestDB(t)

	id, err := db.AddOrGetDescriptionID("a friendly greeter")
	require.NoError(t, err)
	again, err := db.AddOrGetDescriptionID("a friendly greeter")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := db.AddOrGetDescriptionID("something else")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, db.countRows(t, "Descriptions"))
}

func TestAddPackage(t *testing.T) {
	db := createTestDB(t)
	parent, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux"})
	require.NoError(t, err)

	id, err := db.AddPackage(parent, "hello", drvCursor("hello", "2.12.1", "a friendly greeter"), false, true)
	require.NoError(t, err)
	require.NotZero(t, id)

	row, err := db.ResolvePath(api.AttrPath{"legacyPackages", "x86_64-linux", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", row.Pname)
	assert.Equal(t, "2.12.1", row.Version)
	assert.Equal(t, "hello-2.12.1", row.Name)
	assert.Equal(t, "x86_64-linux", row.System)
	assert.Equal(t, []string{"out"}, row.Outputs)
	require.NotNil(t, row.Description)
	assert.Equal(t, "a friendly greeter", *row.Description)
	require.NotNil(t, row.License)
	assert.Equal(t, "MIT", *row.License)
	require.NotNil(t, row.Broken)
	assert.False(t, *row.Broken)
}

func TestAddPackage_NotDerivation(t *testing.T) {
	db := createTestDB(t)
	parent, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux"})
	require.NoError(t, err)

	attrSet := eval.NewTreeCursor(map[string]any{"recurseForDerivations": true})
	_, err = db.AddPackage(parent, "notdrv", attrSet, false, true)

	var notDrv *NotDerivationError
	require.ErrorAs(t, err, &notDrv)
	assert.Equal(t, "notdrv", notDrv.AttrName)

	// With checkDrv=false the caller vouches; missing fields still fail.
	_, err = db.AddPackage(parent, "notdrv", attrSet, false, false)
	require.Error(t, err)
}

func TestAddPackage_MissingRequiredField(t *testing.T) {
	db := createTestDB(t)
	parent, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux"})
	require.NoError(t, err)

	attrs := drvAttrs("hello", "2.12.1", "")
	delete(attrs, "outputs")
	_, err = db.AddPackage(parent, "hello", eval.NewTreeCursor(attrs), false, true)
	require.Error(t, err)
	assert.Zero(t, db.countRows(t, "Packages"))
}

func TestAddPackage_OptionalMetaAbsent(t *testing.T) {
	db := createTestDB(t)
	parent, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux"})
	require.NoError(t, err)

	_, err = db.AddPackage(parent, "bare", drvCursor("bare", "1.0", ""), false, true)
	require.NoError(t, err)

	row, err := db.ResolvePath(api.AttrPath{"legacyPackages", "x86_64-linux", "bare"})
	require.NoError(t, err)
	assert.Nil(t, row.Description)
	assert.Nil(t, row.License)
	assert.Nil(t, row.Broken)
	assert.Nil(t, row.Unfree)
	assert.Zero(t, db.countRows(t, "Descriptions"))
}

func TestAddPackage_ReplaceSemantics(t *testing.T) {
	db := createTestDB(t)
	parent, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux"})
	require.NoError(t, err)

	id, err := db.AddPackage(parent, "hello", drvCursor("hello", "2.12.1", "old"), false, true)
	require.NoError(t, err)

	// replace=false keeps the existing row untouched.
	again, err := db.AddPackage(parent, "hello", drvCursor("hello", "2.12.2", "new"), false, true)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	row, err := db.ResolvePath(api.AttrPath{"legacyPackages", "x86_64-linux", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "2.12.1", row.Version)

	// replace=true overwrites every column, keeping the id.
	replaced, err := db.AddPackage(parent, "hello", drvCursor("hello", "2.12.2", "new"), true, true)
	require.NoError(t, err)
	assert.Equal(t, id, replaced)
	row, err = db.ResolvePath(api.AttrPath{"legacyPackages", "x86_64-linux", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "2.12.2", row.Version)
	require.NotNil(t, row.Description)
	assert.Equal(t, "new", *row.Description)

	assert.Equal(t, 1, db.countRows(t, "Packages"))
}

func TestSetPrefixDone_RecursiveClosure(t *testing.T) {
	db := createTestDB(t)

	top, err := db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux"})
	require.NoError(t, err)
	_, err = db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "x86_64-linux", "nodePackages", "scoped"})
	require.NoError(t, err)
	_, err = db.AddOrGetAttrSetPathID(api.AttrPath{"legacyPackages", "aarch64-linux"})
	require.NoError(t, err)

	require.NoError(t, db.SetPrefixDone(top, true))

	for path, want := range map[string]bool{
		"legacyPackages.x86_64-linux":                     true,
		"legacyPackages.x86_64-linux.nodePackages":        true,
		"legacyPackages.x86_64-linux.nodePackages.scoped": true,
		"legacyPackages.aarch64-linux":                    false,
		"legacyPackages":                                  false,
	} {
		p, err := api.ParseAttrPath(path)
		require.NoError(t, err)
		done, err := db.IsDone(p)
		require.NoError(t, err)
		assert.Equal(t, want, done, path)
	}

	// Clearing propagates the same way.
	require.NoError(t, db.SetPrefixDone(top, false))
	done, err := db.IsDone(api.AttrPath{"legacyPackages", "x86_64-linux", "nodePackages"})
	require.NoError(t, err)
	assert.False(t, done)
}

func TestSetPrefixPathDone(t *testing.T) {
	db := createTestDB(t)
	_, err := db.AddOrGetAttrSetPathID(api.AttrPath{"packages", "x86_64-linux", "hello"})
	require.NoError(t, err)

	require.NoError(t, db.SetPrefixPathDone(api.AttrPath{"packages", "x86_64-linux"}, true))
	done, err := db.IsDone(api.AttrPath{"packages", "x86_64-linux", "hello"})
	require.NoError(t, err)
	assert.True(t, done)
}
