// Package selector implements the CSS-like node selector grammar and the
// reactive, ordered groups built on top of it.
//
// The clause evaluator splits on the grammar's implicit conjunction,
// evaluates each clause against a resolver, and short-circuits on the
// first failing clause.
package selector

import (
	"fmt"
	"strings"

	"github.com/danshapiro/fxd/internal/graph"
)

// clauseKind identifies which selector token form a clause came from.
type clauseKind int

const (
	clauseName clauseKind = iota
	clauseType
	clauseMetaEquals
	clauseMetaPresent
)

type clause struct {
	kind clauseKind
	key  string // meta key, for clauseMetaEquals/clauseMetaPresent
	val  string // expected name / type / meta value
}

// Selector is a parsed, adjacent-token-conjunction expression: "#name",
// ".type", "[key=val]", "[key]" tokens ANDed together.
type Selector struct {
	raw     string
	clauses []clause
}

// Parse compiles a selector expression. Tokens are whitespace-separated;
// all must match for a node to satisfy the selector.
func Parse(expr string) (*Selector, error) {
	expr = strings.TrimSpace(expr)
	s := &Selector{raw: expr}
	if expr == "" {
		return s, nil
	}
	for _, tok := range strings.Fields(expr) {
		c, err := parseToken(tok)
		if err != nil {
			return nil, fmt.Errorf("selector: %q: %w", expr, err)
		}
		s.clauses = append(s.clauses, c)
	}
	return s, nil
}

// MustParse panics on an invalid selector. Intended for compile-time
// constants and tests.
func MustParse(expr string) *Selector {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func parseToken(tok string) (clause, error) {
	switch {
	case strings.HasPrefix(tok, "#"):
		return clause{kind: clauseName, val: tok[1:]}, nil
	case strings.HasPrefix(tok, "."):
		return clause{kind: clauseType, val: tok[1:]}, nil
	case strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]"):
		inner := tok[1 : len(tok)-1]
		if eq := strings.Index(inner, "="); eq >= 0 {
			key := strings.TrimSpace(inner[:eq])
			val := strings.Trim(strings.TrimSpace(inner[eq+1:]), `"'`)
			if key == "" {
				return clause{}, fmt.Errorf("empty meta key in %q", tok)
			}
			return clause{kind: clauseMetaEquals, key: key, val: val}, nil
		}
		key := strings.TrimSpace(inner)
		if key == "" {
			return clause{}, fmt.Errorf("empty meta key in %q", tok)
		}
		return clause{kind: clauseMetaPresent, key: key}, nil
	default:
		return clause{}, fmt.Errorf("unrecognized token %q", tok)
	}
}

// String returns the original selector text.
func (s *Selector) String() string { return s.raw }

// Match reports whether id satisfies every clause of the selector (an
// empty selector matches nothing — callers compose empty selectors as a
// no-op elsewhere, e.g. manual-path-only groups).
func (s *Selector) Match(k *graph.Kernel, id graph.NodeID) bool {
	if len(s.clauses) == 0 {
		return false
	}
	n := k.Node(id)
	if n == nil {
		return false
	}
	for _, c := range s.clauses {
		if !matchClause(c, n) {
			return false
		}
	}
	return true
}

func matchClause(c clause, n *graph.Node) bool {
	switch c.kind {
	case clauseName:
		return n.Name == c.val
	case clauseType:
		return n.TypeTag == c.val
	case clauseMetaPresent:
		_, ok := n.Meta[c.key]
		return ok
	case clauseMetaEquals:
		v, ok := n.Meta[c.key]
		if !ok {
			return false
		}
		return metaAsString(v) == c.val
	default:
		return false
	}
}

// metaAsString renders a meta Value as the string comparator used by
// [key=val]: string compare, quotes optional.
func metaAsString(v graph.Value) string {
	switch v.Kind {
	case graph.KindString:
		return v.Str
	case graph.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case graph.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case graph.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return ""
	}
}
