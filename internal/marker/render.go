package marker

import (
	"fmt"
	"strings"

	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/selector"
)

// RenderOptions configures render_view.
type RenderOptions struct {
	Lang         string
	Sep          string // default "\n\n"
	EOL          string // "lf" (default) or "crlf"
	HoistImports bool
}

// RenderView wraps every snippet in view, in group order, with BEGIN/END
// markers and joins them per opts.
func RenderView(k *graph.Kernel, view *selector.Group, opts RenderOptions) (string, error) {
	sep := opts.Sep
	if sep == "" {
		sep = "\n\n"
	}
	style := styleFor(opts.Lang)

	ids := view.List()
	rendered := make([]string, 0, len(ids))
	var preamble []string
	seenImport := map[string]bool{}

	for _, id := range ids {
		body, err := bodyOf(k, id)
		if err != nil {
			return "", err
		}

		if opts.HoistImports && hoistableLangs[opts.Lang] {
			body, preamble = hoistLeadingImports(body, preamble, seenImport)
		}

		snippetID := snippetIDOf(k, id)
		m := beginMarker{id: snippetID, lang: opts.Lang, checksum: checksum(body)}
		if fileVal, ok := k.Meta(id, "file"); ok && fileVal.Kind == graph.KindString {
			m.file = fileVal.Str
		}
		if orderVal, ok := k.Meta(id, "order"); ok && orderVal.Kind == graph.KindInt {
			m.order = int(orderVal.Int)
			m.hasOrder = true
		}
		if vVal, ok := k.Meta(id, "version"); ok && vVal.Kind == graph.KindInt {
			m.version = int(vVal.Int)
		}

		var b strings.Builder
		b.WriteString(formatBegin(style, m))
		b.WriteString("\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(formatEnd(style, snippetID))
		rendered = append(rendered, b.String())
	}

	var doc strings.Builder
	if len(preamble) > 0 {
		doc.WriteString(strings.Join(preamble, "\n"))
		doc.WriteString("\n\n")
	}
	doc.WriteString(strings.Join(rendered, sep))

	text := doc.String()
	if opts.EOL == "crlf" {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text, nil
}

func bodyOf(k *graph.Kernel, id graph.NodeID) (string, error) {
	v := k.Get(id)
	if v.Kind != graph.KindString {
		return "", fmt.Errorf("marker: snippet node is not a string value")
	}
	return v.Str, nil
}

func snippetIDOf(k *graph.Kernel, id graph.NodeID) string {
	if v, ok := k.Meta(id, "id"); ok && v.Kind == graph.KindString {
		return v.Str
	}
	return string(id)
}

// hoistLeadingImports moves single-line top-of-body "import ..." lines
// into the preamble accumulator, preserving order of first appearance,
// and returns the body with those lines stripped.
func hoistLeadingImports(body string, preamble []string, seen map[string]bool) (string, []string) {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "import ") {
			break
		}
		if !seen[trimmed] {
			seen[trimmed] = true
			preamble = append(preamble, trimmed)
		}
		i++
	}
	return strings.Join(lines[i:], "\n"), preamble
}
