package graph

import "strings"

// Path is a dotted string locating a node, e.g. "snippets.repo.header".
// The empty path denotes the root.
type Path string

// Segments splits a path into its dotted components. The root path yields
// no segments.
func (p Path) Segments() []string {
	s := string(p)
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// Join appends a segment to p, producing a child path.
func (p Path) Join(segment string) Path {
	if p == "" {
		return Path(segment)
	}
	return Path(string(p) + "." + segment)
}

// Parent returns the path one level up, and ok=false for the root.
func (p Path) Parent() (Path, bool) {
	segs := p.Segments()
	if len(segs) <= 1 {
		return "", false
	}
	return Path(strings.Join(segs[:len(segs)-1], ".")), true
}

// Name returns the final segment of the path, or "" for the root.
func (p Path) Name() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
