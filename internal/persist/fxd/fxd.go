// Package fxd implements the SQLite-backed `.fxd` persistence format: a
// schema of nodes, node_values, node_meta, snippets, groups, group_items,
// views, links, markers, and metadata tables, written under one
// transaction on save and
// reconstructed in parent-first order on load.
//
// modernc.org/sqlite is used as a pure-Go SQL driver (see DESIGN.md for
// why it was chosen over a cgo-based driver).
package fxd

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/danshapiro/fxd/internal/fxerr"
)

const schemaVersion = "1"

const ddl = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	id        TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL REFERENCES nodes(id),
	name      TEXT NOT NULL,
	type_tag  TEXT NOT NULL,
	version   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS node_values (
	node_id TEXT PRIMARY KEY REFERENCES nodes(id),
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS node_meta (
	node_id TEXT NOT NULL REFERENCES nodes(id),
	key     TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (node_id, key)
);
CREATE TABLE IF NOT EXISTS snippets (
	node_path   TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	output_path TEXT NOT NULL,
	reactive    INTEGER NOT NULL,
	debounce_us INTEGER NOT NULL,
	params      BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS groups (
	path         TEXT PRIMARY KEY,
	manual_paths BLOB NOT NULL,
	globs        BLOB NOT NULL,
	selectors    BLOB NOT NULL,
	reactive     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS group_items (
	group_path TEXT NOT NULL REFERENCES groups(path),
	node_id    TEXT NOT NULL REFERENCES nodes(id),
	seq        INTEGER NOT NULL,
	PRIMARY KEY (group_path, node_id)
);
CREATE TABLE IF NOT EXISTS views (
	path          TEXT PRIMARY KEY REFERENCES groups(path),
	lang          TEXT NOT NULL,
	sep           TEXT NOT NULL,
	eol           TEXT NOT NULL,
	hoist_imports INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS links (
	source_path TEXT NOT NULL,
	target_path TEXT NOT NULL,
	direction   INTEGER NOT NULL,
	debounce_us INTEGER NOT NULL,
	PRIMARY KEY (source_path, target_path)
);
CREATE TABLE IF NOT EXISTS markers (
	snippet_id TEXT PRIMARY KEY,
	node_id    TEXT NOT NULL REFERENCES nodes(id)
);
`

// Backend is an open `.fxd` database.
type Backend struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the `.fxd` file at path and ensures its
// schema, refusing a file stamped with a newer schema version than this
// build understands. A mismatched schema version raises SchemaMismatch.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("fxd: open %s: %w", path, fxerr.IOFailure)
	}
	db.SetMaxOpenConns(1) // single-writer file, exclusive access

	b := &Backend{db: db, path: path}
	if err := b.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) ensureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("fxd: create schema: %w", fxerr.IOFailure)
	}

	row := b.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'schema_version'`)
	var existing string
	switch err := row.Scan(&existing); err {
	case sql.ErrNoRows:
		_, err := b.db.ExecContext(ctx, `INSERT INTO metadata(key, value) VALUES ('schema_version', ?)`, schemaVersion)
		if err != nil {
			return fmt.Errorf("fxd: stamp schema version: %w", fxerr.IOFailure)
		}
	case nil:
		if existing != schemaVersion {
			return fmt.Errorf("fxd: %s: %w: file is schema %s, this build reads %s", b.path, fxerr.SchemaMismatch, existing, schemaVersion)
		}
	default:
		return fmt.Errorf("fxd: read schema version: %w", fxerr.IOFailure)
	}
	return nil
}

// Close closes the database handle and best-effort removes SQLite's
// sidecar journal/WAL files, which on Windows would otherwise keep the
// main file locked for a subsequent delete.
func (b *Backend) Close() error {
	err := b.db.Close()
	removeSidecarFiles(b.path)
	if err != nil {
		return fmt.Errorf("fxd: close %s: %w", b.path, fxerr.IOFailure)
	}
	return nil
}
