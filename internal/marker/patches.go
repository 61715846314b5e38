package marker

import (
	"fmt"
	"strings"
)

// Patch is one parsed snippet region.
type Patch struct {
	ID       string
	Value    string
	Checksum string // "" if the BEGIN marker carried none
}

// Warning records a per-snippet problem that did not abort the scan —
// skip-on-mismatch is the rule: other snippets in the text still parse.
type Warning struct {
	ID      string
	Message string
}

// ToPatches stream-scans text for BEGIN/END marker pairs and emits one
// Patch per well-formed region. Mismatched or unterminated regions are
// skipped with a recorded Warning; the rest of the document still parses.
func ToPatches(text string) ([]Patch, []Warning) {
	lines := strings.Split(text, "\n")

	var patches []Patch
	var warnings []Warning

	i := 0
	for i < len(lines) {
		kind, trimmed := classifyLine(lines[i])
		if kind != lineBegin {
			i++
			continue
		}

		begin, err := parseBegin(trimmed)
		if err != nil {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("marker: %v at line %d", err, i+1)})
			i++
			continue
		}

		bodyLines := []string{}
		j := i + 1
		closed := false
		for j < len(lines) {
			k, t := classifyLine(lines[j])
			if k == lineBegin {
				// Unterminated region: stop capturing, skip this snippet,
				// resume scanning from the nested BEGIN.
				break
			}
			if k == lineEnd {
				endID, err := parseEndID(t)
				if err != nil {
					warnings = append(warnings, Warning{ID: begin.id, Message: fmt.Sprintf("marker: %v at line %d", err, j+1)})
					break
				}
				if endID != begin.id {
					warnings = append(warnings, Warning{ID: begin.id, Message: fmt.Sprintf("marker: END id=%s does not match BEGIN id=%s at line %d", endID, begin.id, j+1)})
					break
				}
				closed = true
				break
			}
			bodyLines = append(bodyLines, lines[j])
			j++
		}

		if !closed {
			if len(warnings) == 0 || warnings[len(warnings)-1].ID != begin.id {
				warnings = append(warnings, Warning{ID: begin.id, Message: fmt.Sprintf("marker: unterminated BEGIN id=%s at line %d", begin.id, i+1)})
			}
			i = j
			continue
		}

		patches = append(patches, Patch{
			ID:       begin.id,
			Value:    strings.Join(bodyLines, "\n"),
			Checksum: begin.checksum,
		})
		i = j + 1
	}

	return patches, warnings
}
