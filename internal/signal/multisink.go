package signal

import (
	"errors"

	"github.com/danshapiro/fxd/internal/graph"
)

// MultiSink fans one record stream out to several sinks — typically a
// Broadcaster for live subscribers and a WAL writer for durability. Every
// sink is appended to even if an earlier one fails; the errors are
// joined.
type MultiSink struct {
	sinks []graph.Sink
}

// NewMultiSink fans out to every non-nil sink given, in order.
func NewMultiSink(sinks ...graph.Sink) *MultiSink {
	filtered := make([]graph.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Append implements graph.Sink.
func (m *MultiSink) Append(rec graph.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
