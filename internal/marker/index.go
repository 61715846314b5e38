package marker

import (
	"sync"

	"github.com/danshapiro/fxd/internal/graph"
)

// Index maps snippet id (meta.id) to node id. It is derivable and must be
// rebuildable from the graph on load; callers update it on snippet
// creation, on any change to meta.id, and on node move.
type Index struct {
	mu  sync.RWMutex
	ids map[string]graph.NodeID
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{ids: make(map[string]graph.NodeID)}
}

// Put registers or updates a snippet id's node.
func (idx *Index) Put(snippetID string, node graph.NodeID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ids[snippetID] = node
}

// Remove deregisters a snippet id, e.g. on node deletion.
func (idx *Index) Remove(snippetID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.ids, snippetID)
}

// Lookup resolves a snippet id to its node, if indexed.
func (idx *Index) Lookup(snippetID string) (graph.NodeID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.ids[snippetID]
	return id, ok
}

// Rebuild walks every node in the graph and reindexes those carrying a
// meta.id, discarding the prior contents. Implementations must treat the
// index as derivable; this is how a loader restores it after a fresh
// graph reconstruction.
func (idx *Index) Rebuild(k *graph.Kernel) {
	fresh := make(map[string]graph.NodeID)
	for _, id := range k.AllIDs() {
		v, ok := k.Meta(id, "id")
		if !ok || v.Kind != graph.KindString || v.Str == "" {
			continue
		}
		fresh[v.Str] = id
	}
	idx.mu.Lock()
	idx.ids = fresh
	idx.mu.Unlock()
}
