package fxdb

import (
	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/persist/fxwal"
)

// walSink translates kernel records into the WAL's replayable record
// kinds: a structural creation becomes a create record, a value change
// becomes a patch record, and every record is also traced verbatim via
// AppendSignal for audit (replay.go's AppendSignal doc: "not replayed, the
// create/patch records already carry every state change").
type walSink struct {
	w *fxwal.Writer
	k *graph.Kernel
}

func (s *walSink) Append(rec graph.Record) error {
	path, ok := s.k.PathOf(rec.SourceID)
	if !ok {
		return nil // node already deleted again before this sink observed it
	}

	switch rec.Kind {
	case graph.SignalChildren:
		if d, ok := rec.Delta.(graph.ChildDelta); ok && d.Added {
			if _, err := fxwal.AppendCreate(s.w, string(rec.SourceID), rec.TimestampNS, path); err != nil {
				return err
			}
		}
	case graph.SignalValue:
		if d, ok := rec.Delta.(graph.ValueDelta); ok {
			if _, err := fxwal.AppendPatch(s.w, string(rec.SourceID), rec.TimestampNS, path, d.NewValue); err != nil {
				return err
			}
		}
	}

	_, err := fxwal.AppendSignal(s.w, rec)
	return err
}
