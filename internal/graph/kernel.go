// Package graph implements the FXD reactive node graph kernel: the single
// source of truth for node existence, structure, and values.
package graph

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/danshapiro/fxd/internal/fxerr"
)

// WatchCallback receives (new_value, old_value, source_id) on every
// committed mutation of the watched node's value, children, or meta.
type WatchCallback func(newValue, oldValue Value, sourceID NodeID)

// WatchHandle identifies a registered watcher for Unwatch.
type WatchHandle uint64

// Observer is notified after a mutation's signal record has been appended
// and local watchers have run. Groups and entanglement links register as
// observers.
type Observer func(rec Record, node *Node)

type watcher struct {
	id WatchHandle
	cb WatchCallback
}

// Kernel is the graph's single source of truth. Every exported method
// guards node state with one internal lock; the lock is released before
// the sink, watchers, and observers of a mutation run, so those callbacks
// may call back into the kernel.
type Kernel struct {
	mu       sync.Mutex
	nodes    map[NodeID]*Node
	root     *Node
	sink     Sink
	logger   *log.Logger
	schemas  *SchemaRegistry
	watchers map[NodeID][]watcher
	nextWID  WatchHandle
	observers map[uint64]Observer
	nextObsID uint64
	panicLog  map[string]bool // (node id, callback ptr) pairs already logged
}

// Option configures a new Kernel.
type Option func(*Kernel)

// WithSink wires a signal stream sink that receives every mutation record.
func WithSink(s Sink) Option {
	return func(k *Kernel) { k.sink = s }
}

// WithLogger overrides the kernel's logger. Default is a prefixed stdlib
// logger writing to stderr.
func WithLogger(l *log.Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// WithSchemaRegistry wires a JSON-Schema registry used to validate
// type-tagged node values.
func WithSchemaRegistry(r *SchemaRegistry) Option {
	return func(k *Kernel) { k.schemas = r }
}

// New constructs an empty Kernel with just a root node.
func New(opts ...Option) *Kernel {
	root := newNode(RootID, "", "")
	k := &Kernel{
		nodes:     map[NodeID]*Node{RootID: root},
		root:      root,
		sink:      NopSink{},
		logger:    log.New(os.Stderr, "[fxd-graph] ", log.LstdFlags),
		schemas:   NewSchemaRegistry(),
		watchers:  make(map[NodeID][]watcher),
		observers: make(map[uint64]Observer),
		panicLog:  make(map[string]bool),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Schemas returns the kernel's type-tag schema registry.
func (k *Kernel) Schemas() *SchemaRegistry { return k.schemas }

// SetSink replaces the kernel's signal sink. Persistence loaders construct
// a Kernel with the default NopSink, replay/restore state silently, then
// call SetSink once the graph is caught up so only new mutations reach the
// WAL and live subscribers: loading historical state must not re-emit it
// as if it just happened.
func (k *Kernel) SetSink(s Sink) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s == nil {
		s = NopSink{}
	}
	k.sink = s
}

// Resolve walks from root along path, never creating nodes. It returns
// ("", false) for an absent path, including the case of an intermediate
// segment that does not exist.
func (k *Kernel) Resolve(path Path) (NodeID, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.resolveLocked(path)
}

func (k *Kernel) resolveLocked(path Path) (NodeID, bool) {
	cur := k.root
	for _, seg := range path.Segments() {
		childID, ok := cur.Children[seg]
		if !ok {
			return "", false
		}
		child, ok := k.nodes[childID]
		if !ok {
			return "", false
		}
		cur = child
	}
	return cur.ID, true
}

// Ensure walks path, creating missing intermediate segments, and returns
// the terminal node id, auto-vivifying missing segments. Each newly created
// segment emits a SignalChildren record so reactive selectors/groups pick
// up freshly vivified nodes.
func (k *Kernel) Ensure(path Path) NodeID {
	k.mu.Lock()
	id, created := k.ensureLocked(path)
	k.mu.Unlock()

	for _, c := range created {
		rec := Record{
			TimestampNS: time.Now().UnixNano(),
			Kind:        SignalChildren,
			BaseVersion: 0,
			NewVersion:  1,
			SourceID:    c.id,
			Delta:       ChildDelta{Name: c.name, ChildID: c.id, Added: true},
		}
		k.emit(rec, c.node, None(), None())
	}
	return id
}

type createdChild struct {
	id   NodeID
	name string
	node *Node
}

func (k *Kernel) ensureLocked(path Path) (NodeID, []createdChild) {
	var created []createdChild
	cur := k.root
	for _, seg := range path.Segments() {
		childID, ok := cur.Children[seg]
		if ok {
			if child, ok := k.nodes[childID]; ok {
				cur = child
				continue
			}
		}
		child := newNode(NewNodeID(), cur.ID, seg)
		k.nodes[child.ID] = child
		cur.Children[seg] = child.ID
		cur = child
		created = append(created, createdChild{id: child.ID, name: seg, node: child})
	}
	return cur.ID, created
}

// Get returns the current value of id, or None if id is unknown. A node
// whose value was split into children by Set (any array/object value on a
// node not tagged "json") has its value reassembled from those children.
func (k *Kernel) Get(id NodeID) Value {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[id]
	if !ok {
		return None()
	}
	return k.readLocked(n)
}

// readLocked returns n's logical value, reconstructing it from n.Children
// when n's value was split by splitCompoundLocked. A "json"-tagged node
// keeps its compound value inline, so it is returned verbatim. Caller holds
// k.mu.
func (k *Kernel) readLocked(n *Node) Value {
	if n.TypeTag == "json" {
		return n.Value
	}
	switch n.Value.Kind {
	case KindObject:
		out := make(map[string]Value, len(n.Children))
		for name, childID := range n.Children {
			if child, ok := k.nodes[childID]; ok {
				out[name] = k.readLocked(child)
			}
		}
		return Object(out)
	case KindArray:
		out := make([]Value, len(n.Children))
		for name, childID := range n.Children {
			idx, err := strconv.Atoi(name)
			if err != nil || idx < 0 || idx >= len(out) {
				continue
			}
			if child, ok := k.nodes[childID]; ok {
				out[idx] = k.readLocked(child)
			}
		}
		return Array(out)
	default:
		return n.Value
	}
}

// Node returns a defensive copy of the node record for id, or nil.
func (k *Kernel) Node(id NodeID) *Node {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[id]
	if !ok {
		return nil
	}
	return n.clone()
}

// Set is the primary mutation point. A compound value (array/object) is
// split into child nodes rather than stored as an opaque blob, unless the
// node's type tag is "json". Returns fxerr.InvalidType if id has a type
// tag with a registered schema that value fails.
func (k *Kernel) Set(id NodeID, value Value) error {
	k.mu.Lock()
	n, ok := k.nodes[id]
	if !ok {
		k.mu.Unlock()
		return fmt.Errorf("graph: set %s: %w", id, fxerr.NotFound)
	}

	if n.TypeTag != "" && n.TypeTag != "json" {
		if err := k.schemas.Validate(n.TypeTag, value); err != nil {
			k.mu.Unlock()
			return err
		}
	}

	if value.Equal(n.Value) && !value.Compound() {
		k.mu.Unlock()
		return nil
	}

	if value.Compound() && n.TypeTag != "json" {
		k.splitCompoundLocked(n, value)
		k.mu.Unlock()
		return nil
	}

	old := n.Value
	base := n.Version
	n.Value = value
	n.Version = base + 1
	k.mu.Unlock()

	rec := Record{
		TimestampNS: time.Now().UnixNano(),
		Kind:        SignalValue,
		BaseVersion: base,
		NewVersion:  n.Version,
		SourceID:    id,
		Delta:       ValueDelta{OldValue: old, NewValue: value},
	}
	k.emit(rec, n, old, value)
	return nil
}

// splitCompoundLocked writes object/array values as child nodes, then
// records a kind-only marker on n.Value so Get (via readLocked) knows to
// reassemble the value from n.Children rather than returning whatever n.Value
// last held directly. Caller holds k.mu.
func (k *Kernel) splitCompoundLocked(n *Node, value Value) {
	switch value.Kind {
	case KindObject:
		for key, v := range value.Object {
			childID := k.splitChildLocked(n, key)
			k.mu.Unlock()
			_ = k.Set(childID, v)
			k.mu.Lock()
		}
	case KindArray:
		for i, v := range value.Array {
			key := fmt.Sprintf("%d", i)
			childID := k.splitChildLocked(n, key)
			k.mu.Unlock()
			_ = k.Set(childID, v)
			k.mu.Lock()
		}
	}

	if n.Value.Kind == value.Kind {
		return
	}
	old := n.Value
	base := n.Version
	marker := Value{Kind: value.Kind}
	n.Value = marker
	n.Version = base + 1
	k.mu.Unlock()

	rec := Record{
		TimestampNS: time.Now().UnixNano(),
		Kind:        SignalValue,
		BaseVersion: base,
		NewVersion:  n.Version,
		SourceID:    n.ID,
		Delta:       ValueDelta{OldValue: old, NewValue: marker},
	}
	k.emit(rec, n, old, marker)
	k.mu.Lock()
}

// splitChildLocked returns the existing child named key under n, creating
// and announcing (via a SignalChildren record, emitted after unlocking) a
// new one if absent. Caller holds k.mu; it is briefly released to emit.
func (k *Kernel) splitChildLocked(n *Node, key string) NodeID {
	if childID, ok := n.Children[key]; ok {
		return childID
	}
	child := newNode(NewNodeID(), n.ID, key)
	k.nodes[child.ID] = child
	n.Children[key] = child.ID

	k.mu.Unlock()
	rec := Record{
		TimestampNS: time.Now().UnixNano(),
		Kind:        SignalChildren,
		BaseVersion: 0,
		NewVersion:  1,
		SourceID:    child.ID,
		Delta:       ChildDelta{Name: key, ChildID: child.ID, Added: true},
	}
	k.emit(rec, child, None(), None())
	k.mu.Lock()
	return child.ID
}

// Children returns the node's child (name, id) pairs in a stable,
// name-sorted order. Only meta.order at higher layers guarantees a
// meaningful order; sorting by name here just makes iteration
// deterministic for callers that don't care about ordering.
func (k *Kernel) Children(id NodeID) []struct {
	Name string
	ID   NodeID
} {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[id]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]struct {
		Name string
		ID   NodeID
	}, len(names))
	for i, name := range names {
		out[i] = struct {
			Name string
			ID   NodeID
		}{Name: name, ID: n.Children[name]}
	}
	return out
}

// Parent returns id's parent, or ("", false) for the root or an unknown id.
func (k *Kernel) Parent(id NodeID) (NodeID, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[id]
	if !ok || id == RootID {
		return "", false
	}
	return n.Parent, true
}

// Meta returns meta[key] for id, or (None, false) if absent.
func (k *Kernel) Meta(id NodeID, key string) (Value, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[id]
	if !ok {
		return None(), false
	}
	v, ok := n.Meta[key]
	return v, ok
}

// SetMeta sets meta[key] = value on id, bumping version and emitting a
// SignalMetadata record unless the value is unchanged.
func (k *Kernel) SetMeta(id NodeID, key string, value Value) error {
	k.mu.Lock()
	n, ok := k.nodes[id]
	if !ok {
		k.mu.Unlock()
		return fmt.Errorf("graph: set_meta %s: %w", id, fxerr.NotFound)
	}
	old, had := n.Meta[key]
	if had && old.Equal(value) {
		k.mu.Unlock()
		return nil
	}
	base := n.Version
	n.Meta[key] = value
	n.Version = base + 1
	k.mu.Unlock()

	rec := Record{
		TimestampNS: time.Now().UnixNano(),
		Kind:        SignalMetadata,
		BaseVersion: base,
		NewVersion:  n.Version,
		SourceID:    id,
		Delta:       MetaDelta{Key: key, OldValue: old, NewValue: value, HadOld: had},
	}
	k.emit(rec, n, n.Value, n.Value)
	return nil
}

// Delete detaches id from its parent and recursively removes descendants,
// emitting deletion signals bottom-up. Deleting an absent id is a no-op.
func (k *Kernel) Delete(id NodeID) {
	k.mu.Lock()
	n, ok := k.nodes[id]
	if !ok || id == RootID {
		k.mu.Unlock()
		return
	}
	parent, hasParent := k.nodes[n.Parent]
	k.mu.Unlock()

	k.deleteChildrenFirst(id)

	if hasParent {
		k.mu.Lock()
		delete(parent.Children, n.Name)
		parent.Version++
		k.mu.Unlock()
	}
}

func (k *Kernel) deleteChildrenFirst(id NodeID) {
	k.mu.Lock()
	n, ok := k.nodes[id]
	if !ok {
		k.mu.Unlock()
		return
	}
	childIDs := make([]NodeID, 0, len(n.Children))
	for _, cid := range n.Children {
		childIDs = append(childIDs, cid)
	}
	k.mu.Unlock()

	for _, cid := range childIDs {
		k.deleteChildrenFirst(cid)
	}

	k.mu.Lock()
	n, ok = k.nodes[id]
	if !ok {
		k.mu.Unlock()
		return
	}
	old := n.Value
	base := n.Version
	delete(k.nodes, id)
	delete(k.watchers, id)
	k.mu.Unlock()

	rec := Record{
		TimestampNS: time.Now().UnixNano(),
		Kind:        SignalChildren,
		BaseVersion: base,
		NewVersion:  base + 1,
		SourceID:    id,
		Delta:       ChildDelta{Name: n.Name, ChildID: id, Added: false},
	}
	k.emit(rec, n, old, None())
}

// Watch registers cb on id; it fires on every committed mutation of that
// node until Unwatch is called.
func (k *Kernel) Watch(id NodeID, cb WatchCallback) WatchHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nextWID++
	h := k.nextWID
	k.watchers[id] = append(k.watchers[id], watcher{id: h, cb: cb})
	return h
}

// Unwatch removes a previously registered watcher by handle.
func (k *Kernel) Unwatch(id NodeID, h WatchHandle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	list := k.watchers[id]
	for i, w := range list {
		if w.id == h {
			k.watchers[id] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// AddObserver registers a structural observer (groups, entanglement
// links). It returns an unsubscribe function.
func (k *Kernel) AddObserver(o Observer) func() {
	k.mu.Lock()
	k.nextObsID++
	id := k.nextObsID
	k.observers[id] = o
	k.mu.Unlock()
	return func() {
		k.mu.Lock()
		delete(k.observers, id)
		k.mu.Unlock()
	}
}

// emit appends the signal record, then runs local watchers inside a
// panic-catching shell, then notifies structural observers, in that fixed
// order. It must be called without holding k.mu.
func (k *Kernel) emit(rec Record, n *Node, oldValue, newValue Value) {
	if err := k.sink.Append(rec); err != nil {
		k.logger.Printf("signal append failed for %s: %v", rec.SourceID, err)
	}

	k.mu.Lock()
	cbs := append([]watcher(nil), k.watchers[rec.SourceID]...)
	k.mu.Unlock()
	for _, w := range cbs {
		k.runWatcherSafely(rec.SourceID, w, newValue, oldValue)
	}

	k.mu.Lock()
	obs := make([]Observer, 0, len(k.observers))
	for _, o := range k.observers {
		obs = append(obs, o)
	}
	k.mu.Unlock()
	for _, o := range obs {
		o(rec, n)
	}
}

// runWatcherSafely isolates a panicking callback, logging it once per
// (node, callback) pair, so it cannot prevent other watchers or the
// caller from proceeding.
func (k *Kernel) runWatcherSafely(id NodeID, w watcher, newValue, oldValue Value) {
	defer func() {
		if r := recover(); r != nil {
			key := fmt.Sprintf("%s/%p", id, w.cb)
			k.mu.Lock()
			already := k.panicLog[key]
			k.panicLog[key] = true
			k.mu.Unlock()
			if !already {
				k.logger.Printf("watcher panic on %s: %v", id, r)
			}
		}
	}()
	w.cb(newValue, oldValue, id)
}

