package selector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danshapiro/fxd/internal/graph"
)

// Predicate filters a candidate node after selector collection.
type Predicate func(k *graph.Kernel, id graph.NodeID) bool

// ChangeCallback is invoked on membership change with the added and
// removed node ids since the previous reconciliation.
type ChangeCallback func(added, removed []graph.NodeID)

// Group is a reactive, ordered collection of node ids assembled from
// manual paths, selector expressions, and a predicate filter.
type Group struct {
	k    *graph.Kernel
	path graph.Path

	mu          sync.Mutex
	manualPaths []graph.Path
	globs       []string
	selectors   []*Selector
	predicate   Predicate
	isReactive  bool

	members     []graph.NodeID // current membership, in list() order
	memberSet   map[graph.NodeID]int // id -> insertion sequence, for stable tiebreak
	insertSeq   int
	callbacks   []ChangeCallback
	unsubscribe func()
}

// NewGroup creates a new Group at path, ensuring the path's node exists;
// it does not look up an existing Group. Call Reconcile (or set
// Reactive(true), which reconciles on every matching structural event) to
// populate membership from selectors.
func NewGroup(k *graph.Kernel, path graph.Path, manualPaths ...graph.Path) *Group {
	k.Ensure(path)
	g := &Group{
		k:           k,
		path:        path,
		manualPaths: append([]graph.Path(nil), manualPaths...),
		memberSet:   make(map[graph.NodeID]int),
	}
	return g
}

// Include adds a selector the group must reconcile against the live
// graph.
func (g *Group) Include(expr string) error {
	s, err := Parse(expr)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.selectors = append(g.selectors, s)
	g.mu.Unlock()
	return nil
}

// IncludeGlob adds a doublestar path-glob pattern for manual membership
// built from path shapes rather than tag/meta selectors.
func (g *Group) IncludeGlob(pattern string) {
	g.mu.Lock()
	g.globs = append(g.globs, pattern)
	g.mu.Unlock()
}

// Where sets the client-side filter applied after selector collection.
func (g *Group) Where(p Predicate) {
	g.mu.Lock()
	g.predicate = p
	g.mu.Unlock()
}

// Reactive toggles automatic reconciliation on structural graph events. It
// reconciles once immediately when turned on.
func (g *Group) Reactive(on bool) {
	g.mu.Lock()
	wasOn := g.isReactive
	g.isReactive = on
	g.mu.Unlock()

	if on && !wasOn {
		g.unsubscribe = g.k.AddObserver(func(rec graph.Record, n *graph.Node) {
			if rec.Kind == graph.SignalValue {
				return // value-only mutations never change selector membership
			}
			g.Reconcile()
		})
		g.Reconcile()
	} else if !on && wasOn && g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
}

// Dispose stops reactive reconciliation.
func (g *Group) Dispose() {
	g.mu.Lock()
	unsub := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Reconcile recomputes membership from manual paths, globs, and
// selectors, applies the predicate, and fires "change" callbacks for any
// delta. A reactive group runs one full Reconcile per structural event;
// events are not coalesced, so a burst of N structural mutations costs N
// passes.
func (g *Group) Reconcile() {
	g.mu.Lock()
	manual := append([]graph.Path(nil), g.manualPaths...)
	globs := append([]string(nil), g.globs...)
	sels := append([]*Selector(nil), g.selectors...)
	pred := g.predicate
	g.mu.Unlock()

	candidates := make(map[graph.NodeID]bool)
	for _, p := range manual {
		if id, ok := g.k.Resolve(p); ok {
			candidates[id] = true
		}
	}

	allIDs := g.k.AllIDs()
	if len(globs) > 0 {
		for _, id := range allIDs {
			p, ok := g.k.PathOf(id)
			if !ok {
				continue
			}
			for _, pattern := range globs {
				if ok, _ := doublestar.Match(pattern, string(p)); ok {
					candidates[id] = true
					break
				}
			}
		}
	}
	for _, sel := range sels {
		for _, id := range allIDs {
			if sel.Match(g.k, id) {
				candidates[id] = true
			}
		}
	}

	if pred != nil {
		for id := range candidates {
			if !pred(g.k, id) {
				delete(candidates, id)
			}
		}
	}

	g.mu.Lock()
	var added, removed []graph.NodeID
	for id := range candidates {
		if _, existed := g.memberSet[id]; !existed {
			g.insertSeq++
			g.memberSet[id] = g.insertSeq
			added = append(added, id)
		}
	}
	for id := range g.memberSet {
		if !candidates[id] {
			delete(g.memberSet, id)
			removed = append(removed, id)
		}
	}
	g.members = g.orderedLocked()
	cbs := append([]ChangeCallback(nil), g.callbacks...)
	g.mu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		for _, cb := range cbs {
			cb(added, removed)
		}
	}
}

// orderedLocked sorts current members by (meta.order ascending, then
// insertion order, then name). Caller holds g.mu.
func (g *Group) orderedLocked() []graph.NodeID {
	type entry struct {
		id    graph.NodeID
		order float64
		hasOrder bool
		seq   int
		name  string
	}
	entries := make([]entry, 0, len(g.memberSet))
	for id, seq := range g.memberSet {
		e := entry{id: id, seq: seq}
		if n := g.k.Node(id); n != nil {
			e.name = n.Name
			if ov, ok := n.Meta["order"]; ok {
				switch ov.Kind {
				case graph.KindInt:
					e.order, e.hasOrder = float64(ov.Int), true
				case graph.KindFloat:
					e.order, e.hasOrder = ov.Float, true
				}
			}
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.hasOrder != b.hasOrder {
			return a.hasOrder // ordered members sort before unordered ones
		}
		if a.hasOrder && a.order != b.order {
			return a.order < b.order
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.name < b.name
	})
	out := make([]graph.NodeID, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// List returns current membership in list() order.
func (g *Group) List() []graph.NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]graph.NodeID(nil), g.members...)
}

// OnChange registers a membership-change callback.
func (g *Group) OnChange(cb ChangeCallback) {
	g.mu.Lock()
	g.callbacks = append(g.callbacks, cb)
	g.mu.Unlock()
}

// Path returns the group's own node path.
func (g *Group) Path() graph.Path { return g.path }

// String renders the group for diagnostics.
func (g *Group) String() string {
	return fmt.Sprintf("group(%s, %d members)", g.path, len(g.members))
}

// IsReactive reports whether the group currently reconciles automatically
// on structural graph events.
func (g *Group) IsReactive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isReactive
}

// Definition is a group's serializable configuration — everything a
// persistence backend needs to recreate an equivalent Group on load. The
// predicate and change callbacks are not serializable and are dropped, as
// with any function reference, which is dropped on persistence and only
// reinstated if a higher layer re-registers it on reload.
type Definition struct {
	Path        graph.Path
	ManualPaths []graph.Path
	Globs       []string
	Selectors   []string
	Reactive    bool
}

// Definition snapshots g's configuration for persistence.
func (g *Group) Definition() Definition {
	g.mu.Lock()
	defer g.mu.Unlock()
	sels := make([]string, len(g.selectors))
	for i, s := range g.selectors {
		sels[i] = s.String()
	}
	return Definition{
		Path:        g.path,
		ManualPaths: append([]graph.Path(nil), g.manualPaths...),
		Globs:       append([]string(nil), g.globs...),
		Selectors:   sels,
		Reactive:    g.isReactive,
	}
}

// FromDefinition recreates a Group from a persisted Definition, including
// its selectors, but does not turn on reactivity — the caller must call
// Reactive(true) explicitly, matching the "reload reinstantiates them only
// if a higher layer re-registers them" rule for anything function-shaped.
func FromDefinition(k *graph.Kernel, def Definition) (*Group, error) {
	g := NewGroup(k, def.Path, def.ManualPaths...)
	for _, pattern := range def.Globs {
		g.IncludeGlob(pattern)
	}
	for _, expr := range def.Selectors {
		if err := g.Include(expr); err != nil {
			return nil, err
		}
	}
	return g, nil
}
