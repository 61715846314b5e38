package marker

import (
	"fmt"
	"strconv"
	"strings"
)

// beginMarker holds the parsed attributes of an FX:BEGIN line:
//
//	<open> FX:BEGIN id=<ID> [lang=<LANG>] [file=<FILE>] [checksum=<HEX>] [order=<INT>] [version=<INT>] <close>
type beginMarker struct {
	id       string
	lang     string
	file     string
	checksum string
	order    int
	version  int
	hasOrder bool
}

func formatBegin(style CommentStyle, m beginMarker) string {
	var b strings.Builder
	b.WriteString(style.Open)
	b.WriteString(" FX:BEGIN id=")
	b.WriteString(m.id)
	if m.lang != "" {
		b.WriteString(" lang=")
		b.WriteString(m.lang)
	}
	if m.file != "" {
		b.WriteString(" file=")
		b.WriteString(m.file)
	}
	if m.checksum != "" {
		b.WriteString(" checksum=")
		b.WriteString(m.checksum)
	}
	if m.hasOrder {
		b.WriteString(" order=")
		b.WriteString(strconv.Itoa(m.order))
	}
	if m.version != 0 {
		b.WriteString(" version=")
		b.WriteString(strconv.Itoa(m.version))
	}
	if style.Close != "" {
		b.WriteString(" ")
		b.WriteString(style.Close)
	}
	return b.String()
}

func formatEnd(style CommentStyle, id string) string {
	var b strings.Builder
	b.WriteString(style.Open)
	b.WriteString(" FX:END id=")
	b.WriteString(id)
	if style.Close != "" {
		b.WriteString(" ")
		b.WriteString(style.Close)
	}
	return b.String()
}

// lineKind classifies a line during the stream-scan.
type lineKind int

const (
	lineOther lineKind = iota
	lineBegin
	lineEnd
)

// classifyLine recognizes a marker line only when it starts with a
// registered comment-open token (after leading whitespace) and contains
// FX:BEGIN or FX:END, using a fixed-prefix-test lexing style rather
// than a regex-per-line scan.
func classifyLine(line string) (lineKind, string) {
	trimmed := strings.TrimSpace(line)
	if !startsWithAnyOpen(trimmed) {
		return lineOther, ""
	}
	switch {
	case strings.Contains(trimmed, "FX:BEGIN"):
		return lineBegin, trimmed
	case strings.Contains(trimmed, "FX:END"):
		return lineEnd, trimmed
	default:
		return lineOther, ""
	}
}

func startsWithAnyOpen(trimmed string) bool {
	for _, style := range CommentStyles {
		if strings.HasPrefix(trimmed, style.Open) {
			return true
		}
	}
	return false
}

// parseBegin parses the attribute list of an already-classified BEGIN
// line body, e.g. `/* FX:BEGIN id=x lang=js order=1 */`.
func parseBegin(trimmed string) (beginMarker, error) {
	idx := strings.Index(trimmed, "FX:BEGIN")
	rest := trimmed[idx+len("FX:BEGIN"):]
	rest = stripTrailingClose(rest)

	m := beginMarker{}
	fields := strings.Fields(rest)
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return beginMarker{}, fmt.Errorf("marker: malformed attribute %q in BEGIN line", f)
		}
		switch k {
		case "id":
			m.id = v
		case "lang":
			m.lang = v
		case "file":
			m.file = v
		case "checksum":
			m.checksum = v
		case "order":
			n, err := strconv.Atoi(v)
			if err != nil {
				return beginMarker{}, fmt.Errorf("marker: bad order %q: %w", v, err)
			}
			m.order = n
			m.hasOrder = true
		case "version":
			n, err := strconv.Atoi(v)
			if err != nil {
				return beginMarker{}, fmt.Errorf("marker: bad version %q: %w", v, err)
			}
			m.version = n
		}
	}
	if m.id == "" {
		return beginMarker{}, fmt.Errorf("marker: BEGIN line missing id")
	}
	return m, nil
}

// parseEndID extracts the id= attribute of an FX:END line.
func parseEndID(trimmed string) (string, error) {
	idx := strings.Index(trimmed, "FX:END")
	rest := trimmed[idx+len("FX:END"):]
	rest = stripTrailingClose(rest)
	for _, f := range strings.Fields(rest) {
		if k, v, ok := strings.Cut(f, "="); ok && k == "id" {
			return v, nil
		}
	}
	return "", fmt.Errorf("marker: END line missing id")
}

func stripTrailingClose(s string) string {
	s = strings.TrimSpace(s)
	for _, style := range CommentStyles {
		if style.Close != "" && strings.HasSuffix(s, style.Close) {
			return strings.TrimSpace(strings.TrimSuffix(s, style.Close))
		}
	}
	return s
}
