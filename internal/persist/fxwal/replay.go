package fxwal

import (
	"fmt"

	"github.com/danshapiro/fxd/internal/fxerr"
	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/persist/uarr"
)

// AppendCreate records that a node now exists at path.
func AppendCreate(w *Writer, nodeID string, timestampNS int64, path graph.Path) (Record, error) {
	payload, err := uarr.Encode(graph.Object(map[string]graph.Value{
		"path": graph.String(string(path)),
	}))
	if err != nil {
		return Record{}, err
	}
	return w.Append(KindCreate, nodeID, timestampNS, payload)
}

// AppendPatch records a value write at path.
func AppendPatch(w *Writer, nodeID string, timestampNS int64, path graph.Path, value graph.Value) (Record, error) {
	payload, err := uarr.Encode(graph.Object(map[string]graph.Value{
		"path":  graph.String(string(path)),
		"value": value.DropHandle(),
	}))
	if err != nil {
		return Record{}, err
	}
	return w.Append(KindPatch, nodeID, timestampNS, payload)
}

// AppendLinkAdd/AppendLinkDel record entanglement lifecycle events; the
// WAL does not own live Link objects, only the fact that one existed
// between source and target, for the application layer to recreate on
// load.
func AppendLinkAdd(w *Writer, nodeID string, timestampNS int64, source, target graph.Path) (Record, error) {
	return appendLink(w, KindLinkAdd, nodeID, timestampNS, source, target)
}

func AppendLinkDel(w *Writer, nodeID string, timestampNS int64, source, target graph.Path) (Record, error) {
	return appendLink(w, KindLinkDel, nodeID, timestampNS, source, target)
}

func appendLink(w *Writer, kind Kind, nodeID string, timestampNS int64, source, target graph.Path) (Record, error) {
	payload, err := uarr.Encode(graph.Object(map[string]graph.Value{
		"source": graph.String(string(source)),
		"target": graph.String(string(target)),
	}))
	if err != nil {
		return Record{}, err
	}
	return w.Append(kind, nodeID, timestampNS, payload)
}

// AppendSignal mirrors a raw kernel signal record into the WAL as a
// passthrough trace entry; it is not replayed (the create/patch records
// already carry every state change).
func AppendSignal(w *Writer, rec graph.Record) (Record, error) {
	payload, err := uarr.Encode(signalToValue(rec))
	if err != nil {
		return Record{}, err
	}
	return w.Append(KindSignal, string(rec.SourceID), rec.TimestampNS, payload)
}

func signalToValue(rec graph.Record) graph.Value {
	obj := map[string]graph.Value{
		"kind":         graph.String(string(rec.Kind)),
		"base_version": graph.Int(int64(rec.BaseVersion)),
		"new_version":  graph.Int(int64(rec.NewVersion)),
	}
	switch d := rec.Delta.(type) {
	case graph.ValueDelta:
		obj["new_value"] = d.NewValue.DropHandle()
	case graph.ChildDelta:
		obj["child_id"] = graph.String(string(d.ChildID))
		obj["name"] = graph.String(d.Name)
		obj["added"] = graph.Bool(d.Added)
	case graph.MetaDelta:
		obj["key"] = graph.String(d.Key)
		obj["new_value"] = d.NewValue.DropHandle()
	}
	return graph.Object(obj)
}

// AppendCheckpoint snapshots the whole graph: snapshot maps each node's
// path to its current value. Replay applies a checkpoint in sequence like
// any other record; the records before it are still read and applied.
func AppendCheckpoint(w *Writer, timestampNS int64, snapshot map[graph.Path]graph.Value) (Record, error) {
	nodes := make([]graph.Value, 0, len(snapshot))
	for path, v := range snapshot {
		nodes = append(nodes, graph.Object(map[string]graph.Value{
			"path":  graph.String(string(path)),
			"value": v.DropHandle(),
		}))
	}
	payload, err := uarr.Encode(graph.Object(map[string]graph.Value{
		"nodes": graph.Array(nodes),
	}))
	if err != nil {
		return Record{}, err
	}
	return w.Append(KindCheckpoint, "", timestampNS, payload)
}

// LinkEvent is a recovered link_add/link_del record, for the application
// layer to recreate entangle.Link objects after Replay.
type LinkEvent struct {
	Kind           Kind
	Source, Target graph.Path
}

// Replay reconstructs graph state into k by applying every create, patch
// and checkpoint record in sequence order, and returns the
// link_add/link_del events the caller should use to recreate
// entanglement links. A trailing truncated or CRC-mismatched record is
// discarded by Load before Replay sees it, and Load's warning is returned.
func Replay(path string, k *graph.Kernel) ([]LinkEvent, []string, error) {
	records, warnings, err := Load(path)
	if err != nil {
		return nil, warnings, err
	}

	var links []LinkEvent
	for _, rec := range records {
		switch rec.Kind {
		case KindCreate:
			v, err := uarr.Decode(rec.Payload)
			if err != nil {
				return links, warnings, fmt.Errorf("fxwal: replay create (seq %d): %w", rec.Seq, err)
			}
			p, ok := v.Object["path"]
			if !ok {
				return links, warnings, fmt.Errorf("fxwal: replay create (seq %d): %w: missing path", rec.Seq, fxerr.CorruptRecord)
			}
			k.Ensure(graph.Path(p.Str))
		case KindPatch:
			v, err := uarr.Decode(rec.Payload)
			if err != nil {
				return links, warnings, fmt.Errorf("fxwal: replay patch (seq %d): %w", rec.Seq, err)
			}
			p, ok := v.Object["path"]
			if !ok {
				return links, warnings, fmt.Errorf("fxwal: replay patch (seq %d): %w: missing path", rec.Seq, fxerr.CorruptRecord)
			}
			val := v.Object["value"]
			id := k.Ensure(graph.Path(p.Str))
			if err := k.Set(id, val); err != nil {
				return links, warnings, fmt.Errorf("fxwal: replay patch (seq %d): %w", rec.Seq, err)
			}
		case KindCheckpoint:
			v, err := uarr.Decode(rec.Payload)
			if err != nil {
				return links, warnings, fmt.Errorf("fxwal: replay checkpoint (seq %d): %w", rec.Seq, err)
			}
			nodes, ok := v.Object["nodes"]
			if !ok {
				continue
			}
			for _, entry := range nodes.Array {
				p := entry.Object["path"]
				val := entry.Object["value"]
				id := k.Ensure(graph.Path(p.Str))
				if err := k.Set(id, val); err != nil {
					return links, warnings, fmt.Errorf("fxwal: replay checkpoint (seq %d): %w", rec.Seq, err)
				}
			}
		case KindLinkAdd, KindLinkDel:
			v, err := uarr.Decode(rec.Payload)
			if err != nil {
				return links, warnings, fmt.Errorf("fxwal: replay link (seq %d): %w", rec.Seq, err)
			}
			links = append(links, LinkEvent{
				Kind:   rec.Kind,
				Source: graph.Path(v.Object["source"].Str),
				Target: graph.Path(v.Object["target"].Str),
			})
		case KindSignal:
			// Passthrough trace only; state already applied via create/patch.
		}
	}
	return links, warnings, nil
}
