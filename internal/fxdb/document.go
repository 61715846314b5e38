// Package fxdb is the top-level facade tying the graph kernel, selector
// groups, entanglement links, reactive snippets, the marker engine, and
// both persistence backends into one embeddable object: one struct
// bundling the live subsystems an embedding program drives, with an
// Options/applyDefaults pair controlling how it's opened.
package fxdb

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danshapiro/fxd/internal/entangle"
	"github.com/danshapiro/fxd/internal/fxdconfig"
	"github.com/danshapiro/fxd/internal/fxerr"
	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/marker"
	"github.com/danshapiro/fxd/internal/persist/fxd"
	"github.com/danshapiro/fxd/internal/persist/fxwal"
	"github.com/danshapiro/fxd/internal/reactive"
	"github.com/danshapiro/fxd/internal/selector"
	"github.com/danshapiro/fxd/internal/signal"
)

// Options configures Open.
type Options struct {
	// FxdPath is the durable snapshot file. Required unless Config is set.
	FxdPath string
	// WalPath is the write-ahead log. Defaults to FxdPath with its
	// extension replaced by ".fxwal".
	WalPath string
	// Config, if set, supplies FxdPath/WalPath defaults (explicit fields
	// above still win).
	Config *fxdconfig.Config
}

func (o *Options) applyDefaults() error {
	if o.Config != nil {
		if o.FxdPath == "" {
			o.FxdPath = o.Config.Persistence.FxdPath
		}
		if o.WalPath == "" {
			o.WalPath = o.Config.Persistence.WalPath
		}
	}
	if strings.TrimSpace(o.FxdPath) == "" {
		return fmt.Errorf("fxdb: Options.FxdPath is required")
	}
	if o.WalPath == "" {
		o.WalPath = strings.TrimSuffix(o.FxdPath, filepath.Ext(o.FxdPath)) + ".fxwal"
	}
	return nil
}

// Document is a live, wired FXD instance: a kernel backed by a `.fxd`
// snapshot plus a `.fxwal` log of changes since the last snapshot, with
// groups/links/snippets registries and a live signal broadcaster.
type Document struct {
	Kernel      *graph.Kernel
	Index       *marker.Index
	Broadcaster *signal.Broadcaster

	opts    Options
	backend *fxd.Backend
	wal     *fxwal.Writer

	mu       sync.Mutex
	groups   map[graph.Path]*selector.Group
	views    map[graph.Path]marker.RenderOptions
	links    []*entangle.Link
	snippets []*reactive.Snippet

	// PendingGroupDefs/PendingLinkDefs/PendingSnippetDefs are definitions
	// recovered from the `.fxd` snapshot whose function references
	// (predicates, transforms, hooks, fn) could not be restored. The
	// embedding program re-registers each it still cares about via
	// Group/AddLink/AddSnippet; any left untouched are simply dropped from
	// the next Save.
	PendingGroupDefs   []selector.Definition
	PendingLinkDefs    []entangle.Definition
	PendingSnippetDefs []reactive.Definition

	warningsMu sync.Mutex
	Warnings   []string
}

// Open loads (or creates) the `.fxd` snapshot at opts.FxdPath, replays any
// `.fxwal` entries written since that snapshot, and returns a Document
// wired for live use: further mutations flow to both the broadcaster and
// the WAL.
func Open(ctx context.Context, opts Options) (*Document, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}

	backend, err := fxd.Open(ctx, opts.FxdPath)
	if err != nil {
		return nil, err
	}

	res, err := backend.Load(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	wal, err := fxwal.Create(opts.WalPath)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	linkEvents, warnings, err := fxwal.Replay(opts.WalPath, res.Kernel)
	if err != nil {
		_ = wal.Close()
		_ = backend.Close()
		return nil, err
	}

	broadcaster := signal.NewBroadcaster()
	res.Kernel.SetSink(signal.NewMultiSink(broadcaster, &walSink{w: wal, k: res.Kernel}))

	d := &Document{
		Kernel:             res.Kernel,
		Index:              res.Index,
		Broadcaster:        broadcaster,
		opts:               opts,
		backend:            backend,
		wal:                wal,
		groups:             make(map[graph.Path]*selector.Group),
		views:              make(map[graph.Path]marker.RenderOptions),
		PendingGroupDefs:   res.Groups,
		PendingLinkDefs:    mergeLinkEvents(res.Links, linkEvents),
		PendingSnippetDefs: res.Snippets,
		Warnings:           warnings,
	}
	return d, nil
}

// mergeLinkEvents folds the WAL's link_add/link_del trace (since the last
// snapshot) into the snapshot's own link definitions: a del after the
// matching add removes it, an add not present in the snapshot appends a
// bare definition (direction/debounce unknown, since the WAL only records
// endpoints — the caller must re-supply those when recreating the link).
func mergeLinkEvents(base []entangle.Definition, events []fxwal.LinkEvent) []entangle.Definition {
	out := append([]entangle.Definition(nil), base...)
	for _, ev := range events {
		switch ev.Kind {
		case fxwal.KindLinkAdd:
			found := false
			for _, d := range out {
				if d.Source == ev.Source && d.Target == ev.Target {
					found = true
					break
				}
			}
			if !found {
				out = append(out, entangle.Definition{Source: ev.Source, Target: ev.Target})
			}
		case fxwal.KindLinkDel:
			filtered := out[:0]
			for _, d := range out {
				if d.Source == ev.Source && d.Target == ev.Target {
					continue
				}
				filtered = append(filtered, d)
			}
			out = filtered
		}
	}
	return out
}

// Group returns the registered group at path, creating an empty one if
// absent.
func (d *Document) Group(path graph.Path) *selector.Group {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.groups[path]; ok {
		return g
	}
	g := selector.NewGroup(d.Kernel, path)
	d.groups[path] = g
	return g
}

// RegisterView binds rendering options to a group's path, so Render and a
// future Save's views table can find them.
func (d *Document) RegisterView(path graph.Path, opts marker.RenderOptions) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.views[path] = opts
}

// Render renders the group at path using its registered view options.
// Returns fxerr.NotFound (wrapped) if no view was registered for path.
func (d *Document) Render(path graph.Path) (string, error) {
	d.mu.Lock()
	g, hasGroup := d.groups[path]
	opts, hasOpts := d.views[path]
	d.mu.Unlock()
	if !hasGroup || !hasOpts {
		return "", fmt.Errorf("fxdb: render %s: no registered view: %w", path, fxerr.NotFound)
	}
	return marker.RenderView(d.Kernel, g, opts)
}

// AddLink creates and registers an entanglement link, recording its
// creation in the WAL.
func (d *Document) AddLink(cfg entangle.Config) (*entangle.Link, error) {
	l, err := entangle.New(d.Kernel, cfg)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.links = append(d.links, l)
	d.mu.Unlock()

	if _, err := fxwal.AppendLinkAdd(d.wal, "", time.Now().UnixNano(), cfg.Source, cfg.Target); err != nil {
		d.recordWarning(fmt.Sprintf("fxdb: wal append link_add %s<->%s: %v", cfg.Source, cfg.Target, err))
	}
	return l, nil
}

// AddSnippet creates and registers a reactive snippet.
func (d *Document) AddSnippet(cfg reactive.Config) *reactive.Snippet {
	s := reactive.New(d.Kernel, cfg)
	d.mu.Lock()
	d.snippets = append(d.snippets, s)
	d.mu.Unlock()
	return s
}

func (d *Document) recordWarning(msg string) {
	d.warningsMu.Lock()
	d.Warnings = append(d.Warnings, msg)
	d.warningsMu.Unlock()
}

// Save writes a fresh `.fxd` snapshot of the current graph, groups, views,
// links, and snippets under one transaction.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	groups := make([]*selector.Group, 0, len(d.groups))
	for _, g := range d.groups {
		groups = append(groups, g)
	}
	views := make(map[graph.Path]marker.RenderOptions, len(d.views))
	for p, o := range d.views {
		views[p] = o
	}
	links := append([]*entangle.Link(nil), d.links...)
	snippets := append([]*reactive.Snippet(nil), d.snippets...)
	d.mu.Unlock()

	return d.backend.Save(ctx, fxd.SaveInput{
		Kernel:   d.Kernel,
		Groups:   groups,
		Views:    views,
		Links:    links,
		Snippets: snippets,
	})
}

// Checkpoint snapshots every live node's value into the WAL as a
// KindCheckpoint record, so a future Replay can skip straight to it
// instead of replaying the whole history.
func (d *Document) Checkpoint() error {
	snapshot := make(map[graph.Path]graph.Value)
	for _, id := range d.Kernel.AllIDs() {
		if id == graph.RootID {
			continue
		}
		p, ok := d.Kernel.PathOf(id)
		if !ok {
			continue
		}
		snapshot[p] = d.Kernel.Get(id)
	}
	_, err := fxwal.AppendCheckpoint(d.wal, time.Now().UnixNano(), snapshot)
	return err
}

// Stats reports the persisted backend's summary counts.
func (d *Document) Stats(ctx context.Context) (fxd.Stats, error) {
	return d.backend.Stats(ctx)
}

// ValidateIntegrity runs the backend's foreign-key integrity check.
func (d *Document) ValidateIntegrity(ctx context.Context) error {
	return d.backend.ValidateIntegrity(ctx)
}

// Close saves a final snapshot and closes both backends.
func (d *Document) Close(ctx context.Context) error {
	saveErr := d.Save(ctx)
	walErr := d.wal.Close()
	backendErr := d.backend.Close()
	if saveErr != nil {
		return saveErr
	}
	if walErr != nil {
		return walErr
	}
	return backendErr
}
