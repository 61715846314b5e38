package signal

import (
	"errors"
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

type recordingSink struct {
	records []graph.Record
	err     error
}

func (s *recordingSink) Append(rec graph.Record) error {
	s.records = append(s.records, rec)
	return s.err
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	k := graph.New(graph.WithSink(m))
	id := k.Ensure("inputs.a")
	_ = k.Set(id, graph.Int(1))

	if len(a.records) != 1 || len(b.records) != 1 {
		t.Fatalf("expected both sinks to receive 1 record, got %d and %d", len(a.records), len(b.records))
	}
}

func TestMultiSinkSkipsNilSinks(t *testing.T) {
	a := &recordingSink{}
	m := NewMultiSink(nil, a, nil)

	k := graph.New(graph.WithSink(m))
	id := k.Ensure("inputs.a")
	_ = k.Set(id, graph.Int(1))

	if len(a.records) != 1 {
		t.Fatalf("expected non-nil sink to receive 1 record, got %d", len(a.records))
	}
}

func TestMultiSinkJoinsErrorsFromEverySink(t *testing.T) {
	errA := errors.New("sink a failed")
	errB := errors.New("sink b failed")
	a := &recordingSink{err: errA}
	b := &recordingSink{err: errB}
	ok := &recordingSink{}
	m := NewMultiSink(a, ok, b)

	err := m.Append(graph.Record{SourceID: graph.RootID})
	if err == nil {
		t.Fatalf("expected a joined error")
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined error to wrap both sink errors, got %v", err)
	}
	if len(ok.records) != 1 {
		t.Fatalf("expected the healthy sink to still receive the record despite earlier failures")
	}
}
