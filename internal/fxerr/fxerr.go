// Package fxerr defines the sentinel error taxonomy shared across the
// graph kernel, marker engine, and persistence backends.
package fxerr

import "errors"

var (
	// NotFound indicates a path, id, or snippet id was absent when
	// resolution was required.
	NotFound = errors.New("fxd: not found")

	// InvalidType indicates a value does not satisfy a node's type tag.
	InvalidType = errors.New("fxd: invalid type")

	// MarkerParse indicates a malformed, orphaned, or mismatched
	// FX:BEGIN/END marker pair. Per-snippet, not fatal to a document.
	MarkerParse = errors.New("fxd: marker parse error")

	// ChecksumDivergence indicates a marker checksum disagreed with the
	// body it guards. Warning-level: the body is still applied.
	ChecksumDivergence = errors.New("fxd: checksum divergence")

	// LinkCycle indicates two entanglement links would form a
	// synchronous propagation cycle on first activation.
	LinkCycle = errors.New("fxd: entanglement link cycle")

	// SchemaMismatch indicates a persisted file's schema version does
	// not match what this build can read.
	SchemaMismatch = errors.New("fxd: schema mismatch")

	// CorruptRecord indicates a persistence record failed its integrity
	// check (CRC, truncation, malformed UArr payload).
	CorruptRecord = errors.New("fxd: corrupt record")

	// IOFailure wraps an underlying storage error.
	IOFailure = errors.New("fxd: io failure")

	// TimeoutExceeded indicates a persistence operation missed its
	// deadline.
	TimeoutExceeded = errors.New("fxd: timeout exceeded")

	// SnippetNotFound indicates a patch referenced a snippet id absent
	// from the index and on_missing was not "create".
	SnippetNotFound = errors.New("fxd: snippet not found")
)
