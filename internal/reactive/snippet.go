// Package reactive implements reactive snippets: a snippet whose body is
// a function with parameters bound to graph paths, re-executing on input
// change and publishing its return value.
package reactive

import (
	"sync"
	"time"

	"github.com/danshapiro/fxd/internal/graph"
)

// Fn is a reactive snippet's body. It receives every declared parameter's
// current value by name, permitting composition, and returns the value
// to publish.
type Fn func(params map[string]graph.Value) (graph.Value, error)

// ParamBinding rebinds a function parameter to a graph path, with an
// optional transform applied to the raw value before the function sees
// it.
type ParamBinding struct {
	Name      string
	Path      graph.Path
	Transform func(graph.Value) graph.Value
}

// Config configures a Snippet.
type Config struct {
	// Node is the snippet's own location in the graph, where
	// meta.last_error and the toString source text are recorded. If
	// empty, one is minted under "reactive_snippets".
	Node graph.Path

	Fn     Fn
	Source string // text reproduced by ToString
	Params []ParamBinding
	Output graph.Path // optional

	Reactive             bool
	DebounceMicroseconds int64
}

// Snippet is a live reactive-snippet instance.
type Snippet struct {
	k      *graph.Kernel
	nodeID graph.NodeID
	cfg    Config

	mu        sync.Mutex
	unwatches []func()
	debounce  *time.Timer
	disposed  bool
}

// New creates and, if cfg.Reactive, activates a Snippet: a watcher is
// installed on every bound parameter path and the snippet runs once
// immediately.
func New(k *graph.Kernel, cfg Config) *Snippet {
	if cfg.Node == "" {
		cfg.Node = graph.Path("reactive_snippets").Join(string(graph.NewNodeID()))
	}
	nodeID := k.Ensure(cfg.Node)
	_ = k.SetTypeTag(nodeID, "reactive_snippet")

	s := &Snippet{k: k, nodeID: nodeID, cfg: cfg}
	if cfg.Reactive {
		s.activate()
		s.Execute()
	}
	return s
}

func (s *Snippet) activate() {
	for _, p := range s.cfg.Params {
		p := p
		id := s.k.Ensure(p.Path)
		h := s.k.Watch(id, func(newV, oldV graph.Value, src graph.NodeID) {
			s.onInputChange()
		})
		s.unwatches = append(s.unwatches, func() { s.k.Unwatch(id, h) })
	}
}

func (s *Snippet) onInputChange() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	debounce := s.cfg.DebounceMicroseconds
	s.mu.Unlock()

	if debounce <= 0 {
		s.Execute()
		return
	}

	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(time.Duration(debounce)*time.Microsecond, s.Execute)
	s.mu.Unlock()
}

// Execute runs the snippet's function now, regardless of Reactive. Used
// both by the reactive watcher path and as the explicit execute handle
// for non-reactive snippets.
func (s *Snippet) Execute() {
	params := make(map[string]graph.Value, len(s.cfg.Params))
	for _, p := range s.cfg.Params {
		id, ok := s.k.Resolve(p.Path)
		if !ok {
			// Absent param: skip execution, output untouched.
			return
		}
		v := s.k.Get(id)
		if p.Transform != nil {
			v = p.Transform(v)
		}
		params[p.Name] = v
	}

	result, err := s.cfg.Fn(params)
	if err != nil {
		_ = s.k.SetMeta(s.nodeID, "last_error", graph.String(err.Error()))
		return
	}
	_ = s.k.SetMeta(s.nodeID, "last_error", graph.None())

	if s.cfg.Output != "" {
		outID := s.k.Ensure(s.cfg.Output)
		_ = s.k.Set(outID, result)
	}
}

// ToString reproduces the snippet's source text, so it can participate in
// view rendering as if it were passive text.
func (s *Snippet) ToString() string { return s.cfg.Source }

// ParamDefinition is the serializable half of a ParamBinding — the
// transform closure is a function reference and is dropped.
type ParamDefinition struct {
	Name string
	Path graph.Path
}

// Definition is a snippet's serializable configuration. Fn is a function
// reference and is dropped; a higher layer must re-register it (typically
// by re-parsing cfg.Source as an expression) before the snippet can
// Execute again after reload.
type Definition struct {
	Node                 graph.Path
	Source               string
	Params               []ParamDefinition
	Output               graph.Path
	Reactive             bool
	DebounceMicroseconds int64
}

// Definition snapshots s's configuration for persistence.
func (s *Snippet) Definition() Definition {
	params := make([]ParamDefinition, len(s.cfg.Params))
	for i, p := range s.cfg.Params {
		params[i] = ParamDefinition{Name: p.Name, Path: p.Path}
	}
	return Definition{
		Node:                 s.cfg.Node,
		Source:               s.cfg.Source,
		Params:               params,
		Output:               s.cfg.Output,
		Reactive:             s.cfg.Reactive,
		DebounceMicroseconds: s.cfg.DebounceMicroseconds,
	}
}

// NodeID returns the snippet's own node id.
func (s *Snippet) NodeID() graph.NodeID { return s.nodeID }

// LastError returns the snippet's meta.last_error, or "" if none.
func (s *Snippet) LastError() string {
	v, ok := s.k.Meta(s.nodeID, "last_error")
	if !ok || v.Kind != graph.KindString {
		return ""
	}
	return v.Str
}

// Dispose removes all installed watchers and cancels any pending
// debounced execution, so a dropped reactive snippet leaves nothing
// scheduled behind it.
func (s *Snippet) Dispose() {
	s.mu.Lock()
	s.disposed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	unwatches := s.unwatches
	s.unwatches = nil
	s.mu.Unlock()

	for _, u := range unwatches {
		u()
	}
}
