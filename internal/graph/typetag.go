package graph

import (
	"fmt"
	"time"

	"github.com/danshapiro/fxd/internal/fxerr"
)

// SetTypeTag assigns id's advisory type tag. If a schema is registered for
// the new tag, the node's current value must already satisfy it; a node
// that holds no value yet (None) is tagged without validation. Emits a
// SignalMetadata record under the "type_tag" key so reactive groups and
// selectors reconcile on the change (selector clauses like ".type" must
// observe it).
func (k *Kernel) SetTypeTag(id NodeID, tag string) error {
	k.mu.Lock()
	n, ok := k.nodes[id]
	if !ok {
		k.mu.Unlock()
		return fmt.Errorf("graph: set_type_tag %s: %w", id, fxerr.NotFound)
	}
	current := n.Value
	oldTag := n.TypeTag
	k.mu.Unlock()

	if oldTag == tag {
		return nil
	}

	if tag != "" && tag != "json" && !current.IsNone() {
		if err := k.schemas.Validate(tag, current); err != nil {
			return err
		}
	}

	k.mu.Lock()
	base := n.Version
	n.TypeTag = tag
	n.Version = base + 1
	k.mu.Unlock()

	rec := Record{
		TimestampNS: time.Now().UnixNano(),
		Kind:        SignalMetadata,
		BaseVersion: base,
		NewVersion:  n.Version,
		SourceID:    id,
		Delta: MetaDelta{
			Key:      "type_tag",
			OldValue: String(oldTag),
			NewValue: String(tag),
			HadOld:   oldTag != "",
		},
	}
	k.emit(rec, n, n.Value, n.Value)
	return nil
}

// TypeTag returns id's type tag, or "" if unknown/unset.
func (k *Kernel) TypeTag(id NodeID) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[id]
	if !ok {
		return ""
	}
	return n.TypeTag
}
