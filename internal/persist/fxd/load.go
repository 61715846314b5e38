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

// LoadResult is the reconstructed graph plus every definition needed to
// re-instantiate the live objects whose function references persistence
// cannot carry: a caller re-creates Groups, Links, and Snippets from
// these definitions, supplying fresh transforms/hooks/Fn values.
type LoadResult struct {
	Kernel   *graph.Kernel
	Index    *marker.Index
	Groups   []selector.Definition
	Links    []entangle.Definition
	Snippets []reactive.Definition
}

type nodeRow struct {
	id, parentID, name, typeTag string
	version                     uint64
}

// Load replaces the in-memory graph with the one persisted at this
// backend's path. Node ids are not preserved across a
// reload — only paths are stable identity in FXD's model — so every
// table that references a node id at save time is resolved back to a
// path before reconstruction and given a freshly minted id on load.
func (b *Backend) Load(ctx context.Context) (*LoadResult, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, parent_id, name, type_tag, version FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("fxd: query nodes: %w", fxerr.IOFailure)
	}
	byID := make(map[string]nodeRow)
	for rows.Next() {
		var r nodeRow
		if err := rows.Scan(&r.id, &r.parentID, &r.name, &r.typeTag, &r.version); err != nil {
			rows.Close()
			return nil, fmt.Errorf("fxd: scan node row: %w", fxerr.CorruptRecord)
		}
		byID[r.id] = r
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("fxd: iterate nodes: %w", fxerr.IOFailure)
	}
	rows.Close()

	k := graph.New()
	oldToNew := map[string]graph.NodeID{string(graph.RootID): graph.RootID}
	pathCache := map[string]graph.Path{string(graph.RootID): ""}

	var resolvePath func(id string) (graph.Path, error)
	resolving := map[string]bool{}
	resolvePath = func(id string) (graph.Path, error) {
		if p, ok := pathCache[id]; ok {
			return p, nil
		}
		if resolving[id] {
			return "", fmt.Errorf("fxd: node %s: %w: parent cycle", id, fxerr.CorruptRecord)
		}
		r, ok := byID[id]
		if !ok {
			return "", fmt.Errorf("fxd: node %s: %w: missing parent row", id, fxerr.CorruptRecord)
		}
		resolving[id] = true
		parentPath, err := resolvePath(r.parentID)
		if err != nil {
			return "", err
		}
		delete(resolving, id)
		p := parentPath.Join(r.name)
		pathCache[id] = p
		return p, nil
	}

	for id, r := range byID {
		if id == string(graph.RootID) {
			continue
		}
		path, err := resolvePath(id)
		if err != nil {
			return nil, err
		}
		newID := k.Ensure(path)
		oldToNew[id] = newID
		if r.typeTag != "" {
			if err := k.SetTypeTag(newID, r.typeTag); err != nil {
				return nil, fmt.Errorf("fxd: set type tag on %s: %w", path, err)
			}
		}
	}

	if err := loadValues(ctx, b.db, k, oldToNew); err != nil {
		return nil, err
	}
	if err := loadMeta(ctx, b.db, k, oldToNew); err != nil {
		return nil, err
	}

	idx := marker.NewIndex()
	idx.Rebuild(k)

	groups, err := loadGroups(ctx, b.db)
	if err != nil {
		return nil, err
	}
	links, err := loadLinks(ctx, b.db)
	if err != nil {
		return nil, err
	}
	snippets, err := loadSnippets(ctx, b.db)
	if err != nil {
		return nil, err
	}

	return &LoadResult{Kernel: k, Index: idx, Groups: groups, Links: links, Snippets: snippets}, nil
}

func loadValues(ctx context.Context, db *sql.DB, k *graph.Kernel, oldToNew map[string]graph.NodeID) error {
	rows, err := db.QueryContext(ctx, `SELECT node_id, payload FROM node_values`)
	if err != nil {
		return fmt.Errorf("fxd: query node_values: %w", fxerr.IOFailure)
	}
	defer rows.Close()

	for rows.Next() {
		var oldID string
		var payload []byte
		if err := rows.Scan(&oldID, &payload); err != nil {
			return fmt.Errorf("fxd: scan node_values row: %w", fxerr.CorruptRecord)
		}
		newID, ok := oldToNew[oldID]
		if !ok {
			continue // row for a node not present in `nodes`; ignore, matches validate_integrity's orphan report
		}
		var decoded any
		if err := msgpack.Unmarshal(payload, &decoded); err != nil {
			return fmt.Errorf("fxd: decode value for %s: %w", oldID, fxerr.CorruptRecord)
		}
		v := graph.FromAny(decoded)
		if v.IsNone() {
			continue
		}
		if err := k.Set(newID, v); err != nil {
			return fmt.Errorf("fxd: restore value for %s: %w", oldID, err)
		}
	}
	return rows.Err()
}

func loadMeta(ctx context.Context, db *sql.DB, k *graph.Kernel, oldToNew map[string]graph.NodeID) error {
	rows, err := db.QueryContext(ctx, `SELECT node_id, key, payload FROM node_meta`)
	if err != nil {
		return fmt.Errorf("fxd: query node_meta: %w", fxerr.IOFailure)
	}
	defer rows.Close()

	for rows.Next() {
		var oldID, key string
		var payload []byte
		if err := rows.Scan(&oldID, &key, &payload); err != nil {
			return fmt.Errorf("fxd: scan node_meta row: %w", fxerr.CorruptRecord)
		}
		newID, ok := oldToNew[oldID]
		if !ok {
			continue
		}
		var decoded any
		if err := msgpack.Unmarshal(payload, &decoded); err != nil {
			return fmt.Errorf("fxd: decode meta %s.%s: %w", oldID, key, fxerr.CorruptRecord)
		}
		if err := k.SetMeta(newID, key, graph.FromAny(decoded)); err != nil {
			return fmt.Errorf("fxd: restore meta %s.%s: %w", oldID, key, err)
		}
	}
	return rows.Err()
}

func loadGroups(ctx context.Context, db *sql.DB) ([]selector.Definition, error) {
	rows, err := db.QueryContext(ctx, `SELECT path, manual_paths, globs, selectors, reactive FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("fxd: query groups: %w", fxerr.IOFailure)
	}
	defer rows.Close()

	var out []selector.Definition
	for rows.Next() {
		var path string
		var manualPathsBlob, globsBlob, selectorsBlob []byte
		var reactiveFlag int
		if err := rows.Scan(&path, &manualPathsBlob, &globsBlob, &selectorsBlob, &reactiveFlag); err != nil {
			return nil, fmt.Errorf("fxd: scan group row: %w", fxerr.CorruptRecord)
		}
		var manualPaths, globs, selectors []string
		if err := msgpack.Unmarshal(manualPathsBlob, &manualPaths); err != nil {
			return nil, fmt.Errorf("fxd: decode group %s manual paths: %w", path, fxerr.CorruptRecord)
		}
		if err := msgpack.Unmarshal(globsBlob, &globs); err != nil {
			return nil, fmt.Errorf("fxd: decode group %s globs: %w", path, fxerr.CorruptRecord)
		}
		if err := msgpack.Unmarshal(selectorsBlob, &selectors); err != nil {
			return nil, fmt.Errorf("fxd: decode group %s selectors: %w", path, fxerr.CorruptRecord)
		}
		out = append(out, selector.Definition{
			Path:        graph.Path(path),
			ManualPaths: stringsToPaths(manualPaths),
			Globs:       globs,
			Selectors:   selectors,
			Reactive:    reactiveFlag != 0,
		})
	}
	return out, rows.Err()
}

func loadLinks(ctx context.Context, db *sql.DB) ([]entangle.Definition, error) {
	rows, err := db.QueryContext(ctx, `SELECT source_path, target_path, direction, debounce_us FROM links`)
	if err != nil {
		return nil, fmt.Errorf("fxd: query links: %w", fxerr.IOFailure)
	}
	defer rows.Close()

	var out []entangle.Definition
	for rows.Next() {
		var source, target string
		var direction int
		var debounce int64
		if err := rows.Scan(&source, &target, &direction, &debounce); err != nil {
			return nil, fmt.Errorf("fxd: scan link row: %w", fxerr.CorruptRecord)
		}
		out = append(out, entangle.Definition{
			Source:               graph.Path(source),
			Target:               graph.Path(target),
			Direction:            entangle.Direction(direction),
			DebounceMicroseconds: debounce,
		})
	}
	return out, rows.Err()
}

func loadSnippets(ctx context.Context, db *sql.DB) ([]reactive.Definition, error) {
	rows, err := db.QueryContext(ctx, `SELECT node_path, source, output_path, reactive, debounce_us, params FROM snippets`)
	if err != nil {
		return nil, fmt.Errorf("fxd: query snippets: %w", fxerr.IOFailure)
	}
	defer rows.Close()

	var out []reactive.Definition
	for rows.Next() {
		var nodePath, source, outputPath string
		var reactiveFlag int
		var debounce int64
		var paramsBlob []byte
		if err := rows.Scan(&nodePath, &source, &outputPath, &reactiveFlag, &debounce, &paramsBlob); err != nil {
			return nil, fmt.Errorf("fxd: scan snippet row: %w", fxerr.CorruptRecord)
		}
		var params []reactive.ParamDefinition
		if err := msgpack.Unmarshal(paramsBlob, &params); err != nil {
			return nil, fmt.Errorf("fxd: decode snippet %s params: %w", nodePath, fxerr.CorruptRecord)
		}
		out = append(out, reactive.Definition{
			Node:                 graph.Path(nodePath),
			Source:               source,
			Params:               params,
			Output:               graph.Path(outputPath),
			Reactive:             reactiveFlag != 0,
			DebounceMicroseconds: debounce,
		})
	}
	return out, rows.Err()
}

func stringsToPaths(ss []string) []graph.Path {
	out := make([]graph.Path, len(ss))
	for i, s := range ss {
		out[i] = graph.Path(s)
	}
	return out
}
