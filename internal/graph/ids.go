package graph

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// NodeID is the opaque, process-wide-unique, never-reused node identifier.
// ULIDs sort lexically by creation time; the WAL numbers its records with
// its own counter and the SQLite loader does not sort by id, so neither
// depends on that order.
type NodeID string

// RootID is the sentinel identifier for the root node.
const RootID NodeID = "root"

var idMu sync.Mutex

// NewNodeID mints a fresh ULID-based node id.
func NewNodeID() NodeID {
	idMu.Lock()
	defer idMu.Unlock()
	return NodeID(ulid.Make().String())
}
