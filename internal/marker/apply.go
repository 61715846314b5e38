package marker

import (
	"fmt"

	"github.com/danshapiro/fxd/internal/fxerr"
	"github.com/danshapiro/fxd/internal/graph"
)

// ApplyOptions configures apply_patches.
type ApplyOptions struct {
	OnMissing  string // "create" or "" (surface SnippetNotFound)
	OrphanRoot graph.Path // default "snippets.orphans"
}

// ApplyResult reports what happened for each patch.
type ApplyResult struct {
	Applied    []string // snippet ids successfully applied
	Divergence []string // snippet ids whose checksum did not match (still applied — editor wins)
	Created    []string // snippet ids created under OrphanRoot
}

// ApplyPatches writes each patch's body to its indexed node, creating an
// orphan snippet when the id is unindexed and on_missing == "create"
// Checksum divergence is a warning, not a rejection: the body is
// applied regardless ("editor wins").
func ApplyPatches(k *graph.Kernel, idx *Index, patches []Patch, opts ApplyOptions) (ApplyResult, error) {
	orphanRoot := opts.OrphanRoot
	if orphanRoot == "" {
		orphanRoot = "snippets.orphans"
	}

	var result ApplyResult
	for _, p := range patches {
		nodeID, ok := idx.Lookup(p.ID)
		if !ok {
			if opts.OnMissing != "create" {
				return result, fmt.Errorf("marker: patch id %s: %w", p.ID, fxerr.SnippetNotFound)
			}
			path := orphanRoot.Join(p.ID)
			nodeID = k.Ensure(path)
			_ = k.SetMeta(nodeID, "id", graph.String(p.ID))
			idx.Put(p.ID, nodeID)
			result.Created = append(result.Created, p.ID)
		}

		if p.Checksum != "" && checksum(p.Value) != p.Checksum {
			result.Divergence = append(result.Divergence, p.ID)
		}

		if err := k.Set(nodeID, graph.String(p.Value)); err != nil {
			return result, fmt.Errorf("marker: applying patch %s: %w", p.ID, err)
		}
		result.Applied = append(result.Applied, p.ID)
	}
	return result, nil
}
