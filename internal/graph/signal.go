package graph

// SignalKind identifies the shape of a mutation delta.
type SignalKind string

const (
	SignalValue    SignalKind = "value"
	SignalChildren SignalKind = "children"
	SignalMetadata SignalKind = "metadata"
	SignalCustom   SignalKind = "custom"
)

// ChildDelta describes a single child add/remove under SignalChildren.
type ChildDelta struct {
	Name    string
	ChildID NodeID
	Added   bool
}

// MetaDelta describes a single key's old/new value under SignalMetadata.
type MetaDelta struct {
	Key      string
	OldValue Value
	NewValue Value
	HadOld   bool
}

// ValueDelta carries the old/new value under SignalValue.
type ValueDelta struct {
	OldValue Value
	NewValue Value
}

// Record is one append-only signal-stream entry describing a kernel
// mutation.
type Record struct {
	TimestampNS int64
	Kind        SignalKind
	BaseVersion uint64
	NewVersion  uint64
	SourceID    NodeID
	Delta       any
}

// Sink receives every record the kernel produces, in mutation order,
// before local watchers are invoked. Implementations must not block
// indefinitely; the kernel is single-threaded and a stalled Append stalls
// every subsequent mutation.
type Sink interface {
	Append(Record) error
}

// NopSink discards every record. It is the kernel's default sink so a
// Kernel can be used standalone without a signal stream wired in.
type NopSink struct{}

func (NopSink) Append(Record) error { return nil }
