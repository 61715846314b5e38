// Package entangle implements bidirectional value mirroring between two
// graph nodes with transforms and lifecycle hooks — the "atomics" that
// keep e.g. Celsius and Fahrenheit nodes consistent without callbacks at
// every call site.
package entangle

import (
	"fmt"
	"sync"
	"time"

	"github.com/danshapiro/fxd/internal/fxerr"
	"github.com/danshapiro/fxd/internal/graph"
)

// Direction controls which way a link propagates.
type Direction int

const (
	AtoB Direction = iota
	BtoA
	Both
)

// Transform converts a value crossing the link. The identity transform
// (returning v unchanged) is used when none is configured.
type Transform func(v graph.Value) (graph.Value, error)

// Decision is a before_set hook's verdict.
type Decision struct {
	Proceed  bool
	Override bool // when true and Proceed, Value replaces the propagated value
	Value    graph.Value
	Reject   bool
	Reason   string
}

// ProceedWith accepts the incoming value, replacing it with value.
func ProceedWith(value graph.Value) Decision {
	return Decision{Proceed: true, Override: true, Value: value}
}

// Proceed accepts the incoming value unmodified.
func Proceed() Decision { return Decision{Proceed: true} }

// Skip silently drops this propagation without error.
func Skip() Decision { return Decision{} }

// Reject aborts the propagation and records reason as the cycle's error.
func Reject(reason string) Decision { return Decision{Reject: true, Reason: reason} }

// Hooks bundles a side's before_set/set/after_set callbacks. Any may be
// nil.
type Hooks struct {
	BeforeSet func(incoming, current graph.Value) Decision
	Set       func(value graph.Value)
	AfterSet  func(value graph.Value)
}

// Config configures a Link.
type Config struct {
	Source, Target graph.Path
	Direction      Direction
	MapAtoB        Transform
	MapBtoA        Transform
	HooksA, HooksB Hooks

	DebounceMicroseconds int64
	InitialSync          bool // propagate A->B (or B->A per Direction) once at creation
}

// Link is a live entanglement between two nodes.
type Link struct {
	k    *graph.Kernel
	cfg  Config
	srcA graph.NodeID
	srcB graph.NodeID

	mu        sync.Mutex
	paused    bool
	disposed  bool
	inFlight  direction // which side's propagation is currently in progress, or none
	errCount  int
	lastError error

	unwatchA func()
	unwatchB func()

	debounceA *time.Timer
	debounceB *time.Timer
}

type direction int

const (
	none direction = iota
	fromA
	fromB
)

// New creates and activates a link per cfg, performing InitialSync if
// requested. Returns fxerr.LinkCycle if source == target.
func New(k *graph.Kernel, cfg Config) (*Link, error) {
	if cfg.Source == cfg.Target {
		return nil, fmt.Errorf("entangle: link %s<->%s: %w", cfg.Source, cfg.Target, fxerr.LinkCycle)
	}
	if cfg.MapAtoB == nil {
		cfg.MapAtoB = identity
	}
	if cfg.MapBtoA == nil {
		cfg.MapBtoA = identity
	}

	l := &Link{
		k:    k,
		cfg:  cfg,
		srcA: k.Ensure(cfg.Source),
		srcB: k.Ensure(cfg.Target),
	}

	if cfg.Direction == AtoB || cfg.Direction == Both {
		h := k.Watch(l.srcA, func(newV, oldV graph.Value, src graph.NodeID) {
			l.onChange(fromA, newV)
		})
		l.unwatchA = func() { k.Unwatch(l.srcA, h) }
	}
	if cfg.Direction == BtoA || cfg.Direction == Both {
		h := k.Watch(l.srcB, func(newV, oldV graph.Value, src graph.NodeID) {
			l.onChange(fromB, newV)
		})
		l.unwatchB = func() { k.Unwatch(l.srcB, h) }
	}

	if cfg.InitialSync {
		switch cfg.Direction {
		case BtoA:
			l.propagate(fromB, k.Get(l.srcB))
		default:
			l.propagate(fromA, k.Get(l.srcA))
		}
	}

	return l, nil
}

func identity(v graph.Value) (graph.Value, error) { return v, nil }

func (l *Link) onChange(dir direction, newV graph.Value) {
	l.mu.Lock()
	if l.paused || l.disposed || l.inFlight != none {
		l.mu.Unlock()
		return
	}
	debounce := l.cfg.DebounceMicroseconds
	l.mu.Unlock()

	if debounce <= 0 {
		l.propagate(dir, newV)
		return
	}
	l.scheduleDebounced(dir, newV, time.Duration(debounce)*time.Microsecond)
}

func (l *Link) scheduleDebounced(dir direction, newV graph.Value, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var timer **time.Timer
	if dir == fromA {
		timer = &l.debounceA
	} else {
		timer = &l.debounceB
	}
	if *timer != nil {
		(*timer).Stop()
	}
	*timer = time.AfterFunc(d, func() { l.propagate(dir, newV) })
}

// propagate applies the configured transform and hooks, writing the other
// endpoint. The re-entrancy guard suppresses the reciprocal watcher from
// re-propagating for this cycle.
func (l *Link) propagate(dir direction, incoming graph.Value) {
	l.mu.Lock()
	if l.disposed || l.paused {
		l.mu.Unlock()
		return
	}
	l.inFlight = dir
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.inFlight = none
		l.mu.Unlock()
	}()

	var (
		targetID  graph.NodeID
		transform Transform
		hooks     Hooks
	)
	if dir == fromA {
		targetID, transform, hooks = l.srcB, l.cfg.MapAtoB, l.cfg.HooksB
	} else {
		targetID, transform, hooks = l.srcA, l.cfg.MapBtoA, l.cfg.HooksA
	}

	mapped, err := transform(incoming)
	if err != nil {
		l.recordError(err)
		return
	}

	current := l.k.Get(targetID)
	if hooks.BeforeSet != nil {
		dec := hooks.BeforeSet(mapped, current)
		if dec.Reject {
			l.recordError(fmt.Errorf("entangle: before_set rejected: %s", dec.Reason))
			return
		}
		if !dec.Proceed {
			return
		}
		if dec.Override {
			mapped = dec.Value
		}
	}

	if err := l.k.Set(targetID, mapped); err != nil {
		l.recordError(err)
		return
	}
	if hooks.Set != nil {
		hooks.Set(mapped)
	}
	if hooks.AfterSet != nil {
		hooks.AfterSet(mapped)
	}
}

func (l *Link) recordError(err error) {
	l.mu.Lock()
	l.errCount++
	l.lastError = err
	l.mu.Unlock()
}

// Definition is a link's serializable configuration. Transforms and hooks
// are function references, so they are dropped on persistence; a higher
// layer must re-register them on reload.
type Definition struct {
	Source, Target       graph.Path
	Direction             Direction
	DebounceMicroseconds int64
}

// Definition snapshots l's endpoints and direction for persistence.
func (l *Link) Definition() Definition {
	return Definition{
		Source:               l.cfg.Source,
		Target:               l.cfg.Target,
		Direction:            l.cfg.Direction,
		DebounceMicroseconds: l.cfg.DebounceMicroseconds,
	}
}

// ErrorCount returns how many propagation cycles have failed.
func (l *Link) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errCount
}

// LastError returns the most recent propagation failure, if any.
func (l *Link) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// Pause suspends propagation without removing watchers.
func (l *Link) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume re-enables propagation.
func (l *Link) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

// Dispose removes the link's watchers from both endpoints. It does not
// modify values.
func (l *Link) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	ua, ub := l.unwatchA, l.unwatchB
	if l.debounceA != nil {
		l.debounceA.Stop()
	}
	if l.debounceB != nil {
		l.debounceB.Stop()
	}
	l.mu.Unlock()

	if ua != nil {
		ua()
	}
	if ub != nil {
		ub()
	}
}
