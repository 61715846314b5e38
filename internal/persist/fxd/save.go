package fxd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/danshapiro/fxd/internal/entangle"
	"github.com/danshapiro/fxd/internal/fxerr"
	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/marker"
	"github.com/danshapiro/fxd/internal/reactive"
	"github.com/danshapiro/fxd/internal/selector"
)

// SaveInput bundles everything save(path) writes alongside the raw graph:
// the live group, link, and reactive-snippet objects whose *definitions*
// (not their function references) are serializable.
type SaveInput struct {
	Kernel   *graph.Kernel
	Groups   []*selector.Group
	Views    map[graph.Path]marker.RenderOptions // optional, keyed by group path
	Links    []*entangle.Link
	Snippets []*reactive.Snippet
}

// Save writes the current state of in atomically under one transaction
// by traversing the graph and writing INSERT OR REPLACE rows under one
// transaction.
func (b *Backend) Save(ctx context.Context, in SaveInput) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fxd: begin save transaction: %w", fxerr.IOFailure)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if err := clearTables(ctx, tx); err != nil {
		return err
	}
	if err := saveNodes(ctx, tx, in.Kernel); err != nil {
		return err
	}
	if err := saveGroups(ctx, tx, in.Groups, in.Views); err != nil {
		return err
	}
	if err := saveLinks(ctx, tx, in.Links); err != nil {
		return err
	}
	if err := saveSnippets(ctx, tx, in.Snippets); err != nil {
		return err
	}
	if err := saveMarkers(ctx, tx, in.Kernel); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fxd: commit save: %w", fxerr.IOFailure)
	}
	return nil
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"node_meta", "node_values", "nodes", "group_items", "views", "groups", "links", "snippets", "markers"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("fxd: clear %s: %w", table, fxerr.IOFailure)
		}
	}
	return nil
}

func saveNodes(ctx context.Context, tx *sql.Tx, k *graph.Kernel) error {
	ids := k.AllIDs()
	for _, id := range ids {
		n := k.Node(id)
		if n == nil {
			continue
		}
		parent := string(n.Parent)
		if id == graph.RootID {
			// Root has no real parent; self-reference satisfies the
			// parent_id foreign key without a sentinel NULL/empty row.
			parent = string(graph.RootID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO nodes(id, parent_id, name, type_tag, version) VALUES (?, ?, ?, ?, ?)`,
			string(id), parent, n.Name, n.TypeTag, n.Version,
		); err != nil {
			return fmt.Errorf("fxd: save node %s: %w", id, fxerr.IOFailure)
		}

		payload, err := msgpack.Marshal(n.Value.DropHandle().ToAny())
		if err != nil {
			return fmt.Errorf("fxd: encode value for %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO node_values(node_id, payload) VALUES (?, ?)`,
			string(id), payload,
		); err != nil {
			return fmt.Errorf("fxd: save value for %s: %w", id, fxerr.IOFailure)
		}

		for key, v := range n.Meta {
			metaPayload, err := msgpack.Marshal(v.DropHandle().ToAny())
			if err != nil {
				return fmt.Errorf("fxd: encode meta %s.%s: %w", id, key, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO node_meta(node_id, key, payload) VALUES (?, ?, ?)`,
				string(id), key, metaPayload,
			); err != nil {
				return fmt.Errorf("fxd: save meta %s.%s: %w", id, key, fxerr.IOFailure)
			}
		}
	}
	return nil
}

func saveGroups(ctx context.Context, tx *sql.Tx, groups []*selector.Group, views map[graph.Path]marker.RenderOptions) error {
	for _, g := range groups {
		def := g.Definition()

		manualPaths, err := msgpack.Marshal(pathsToStrings(def.ManualPaths))
		if err != nil {
			return fmt.Errorf("fxd: encode group %s manual paths: %w", def.Path, err)
		}
		globs, err := msgpack.Marshal(def.Globs)
		if err != nil {
			return fmt.Errorf("fxd: encode group %s globs: %w", def.Path, err)
		}
		selectors, err := msgpack.Marshal(def.Selectors)
		if err != nil {
			return fmt.Errorf("fxd: encode group %s selectors: %w", def.Path, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO groups(path, manual_paths, globs, selectors, reactive) VALUES (?, ?, ?, ?, ?)`,
			string(def.Path), manualPaths, globs, selectors, boolToInt(def.Reactive),
		); err != nil {
			return fmt.Errorf("fxd: save group %s: %w", def.Path, fxerr.IOFailure)
		}

		for seq, id := range g.List() {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO group_items(group_path, node_id, seq) VALUES (?, ?, ?)`,
				string(def.Path), string(id), seq,
			); err != nil {
				return fmt.Errorf("fxd: save group item %s/%s: %w", def.Path, id, fxerr.IOFailure)
			}
		}

		if opts, ok := views[def.Path]; ok {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO views(path, lang, sep, eol, hoist_imports) VALUES (?, ?, ?, ?, ?)`,
				string(def.Path), opts.Lang, opts.Sep, opts.EOL, boolToInt(opts.HoistImports),
			); err != nil {
				return fmt.Errorf("fxd: save view %s: %w", def.Path, fxerr.IOFailure)
			}
		}
	}
	return nil
}

func saveLinks(ctx context.Context, tx *sql.Tx, links []*entangle.Link) error {
	for _, l := range links {
		def := l.Definition()
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO links(source_path, target_path, direction, debounce_us) VALUES (?, ?, ?, ?)`,
			string(def.Source), string(def.Target), int(def.Direction), def.DebounceMicroseconds,
		); err != nil {
			return fmt.Errorf("fxd: save link %s<->%s: %w", def.Source, def.Target, fxerr.IOFailure)
		}
	}
	return nil
}

func saveSnippets(ctx context.Context, tx *sql.Tx, snippets []*reactive.Snippet) error {
	for _, s := range snippets {
		def := s.Definition()
		params, err := msgpack.Marshal(def.Params)
		if err != nil {
			return fmt.Errorf("fxd: encode snippet %s params: %w", def.Node, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO snippets(node_path, source, output_path, reactive, debounce_us, params) VALUES (?, ?, ?, ?, ?, ?)`,
			string(def.Node), def.Source, string(def.Output), boolToInt(def.Reactive), def.DebounceMicroseconds, params,
		); err != nil {
			return fmt.Errorf("fxd: save snippet %s: %w", def.Node, fxerr.IOFailure)
		}
	}
	return nil
}

func saveMarkers(ctx context.Context, tx *sql.Tx, k *graph.Kernel) error {
	for _, id := range k.AllIDs() {
		v, ok := k.Meta(id, "id")
		if !ok || v.Kind != graph.KindString || v.Str == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO markers(snippet_id, node_id) VALUES (?, ?)`,
			v.Str, string(id),
		); err != nil {
			return fmt.Errorf("fxd: save marker %s: %w", v.Str, fxerr.IOFailure)
		}
	}
	return nil
}

func pathsToStrings(paths []graph.Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
