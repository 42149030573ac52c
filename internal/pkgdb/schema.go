package pkgdb

// Schema version constants. Tables are never migrated in place — a stored
// tables version different from tablesSchemaVersion is fatal to the caller,
// which discards and recreates the file. Views are cheap derived state and
// are recreated whenever the stored views version drifts.
const (
	tablesSchemaVersion = "0.1.0"
	viewsSchemaVersion  = "0.2.0"

	versionKeyTables = "pkgdb_schema"
	versionKeyViews  = "pkgdb_views_schema"

	// versionKeyRulesHash records the hash of the rules tree the database
	// was scraped under, so a cache built under different rules can be
	// detected and discarded.
	versionKeyRulesHash = "scrape_rules_hash"
)

const sqlTables = `
CREATE TABLE IF NOT EXISTS AttrSets (
	id     INTEGER PRIMARY KEY,
	parent INTEGER NOT NULL DEFAULT 0,
	name   TEXT    NOT NULL,
	done   INTEGER NOT NULL DEFAULT 0,
	UNIQUE ( parent, name )
);
CREATE INDEX IF NOT EXISTS idx_AttrSets_parent ON AttrSets ( parent );

CREATE TABLE IF NOT EXISTS Descriptions (
	id          INTEGER PRIMARY KEY,
	description TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS Packages (
	id               INTEGER PRIMARY KEY,
	parent           INTEGER NOT NULL REFERENCES AttrSets ( id ),
	attrName         TEXT    NOT NULL,
	name             TEXT    NOT NULL,
	pname            TEXT    NOT NULL,
	version          TEXT    NOT NULL,
	license          TEXT,
	outputs          JSON    NOT NULL,
	outputsToInstall JSON    NOT NULL,
	broken           INTEGER,
	unfree           INTEGER,
	descriptionId    INTEGER REFERENCES Descriptions ( id ),
	system           TEXT    NOT NULL,
	UNIQUE ( parent, attrName )
);

CREATE TABLE IF NOT EXISTS DbVersions (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS LockedFlake (
	fingerprint    TEXT PRIMARY KEY,
	lockedRef      TEXT NOT NULL,
	lockedRefAttrs JSON NOT NULL
);

CREATE TABLE IF NOT EXISTS SearchIndex (
	token  TEXT PRIMARY KEY,
	bitmap BLOB NOT NULL
);
`

// sqlDropViews and sqlViews together implement the views refresh: drop and
// recreate without touching table rows.
const sqlDropViews = `
DROP VIEW IF EXISTS v_Packages;
DROP VIEW IF EXISTS v_AttrPaths;
`

const sqlViews = `
CREATE VIEW IF NOT EXISTS v_AttrPaths AS
WITH RECURSIVE Tree ( id, path ) AS (
	SELECT id, name FROM AttrSets WHERE parent = 0
	UNION ALL
	SELECT a.id, t.path || '.' || a.name FROM AttrSets a JOIN Tree t ON a.parent = t.id
)
SELECT id, path FROM Tree;

CREATE VIEW IF NOT EXISTS v_Packages AS
SELECT p.id, p.parent, t.path || '.' || p.attrName AS attrPath,
       p.attrName, p.name, p.pname, p.version, p.license,
       p.outputs, p.outputsToInstall, p.broken, p.unfree, p.system,
       d.description
FROM Packages p
JOIN v_AttrPaths t ON p.parent = t.id
LEFT JOIN Descriptions d ON p.descriptionId = d.id;
`
