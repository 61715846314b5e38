package selector

import (
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

func TestSelectorMatch(t *testing.T) {
	k := graph.New()
	id := k.Ensure("snippets.repo.header")
	_ = k.SetTypeTag(id, "snippet")
	_ = k.SetMeta(id, "lang", graph.String("js"))

	cases := []struct {
		expr string
		want bool
	}{
		{"#header", true},
		{"#footer", false},
		{".snippet", true},
		{".view", false},
		{"[lang=js]", true},
		{`[lang="js"]`, true},
		{"[lang=py]", false},
		{"[lang]", true},
		{"[missing]", false},
		{".snippet [lang=js]", true},
		{".snippet [lang=py]", false},
		{"", false},
	}
	for _, tc := range cases {
		sel, err := Parse(tc.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expr, err)
		}
		if got := sel.Match(k, id); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestParseRejectsUnrecognizedToken(t *testing.T) {
	if _, err := Parse("~bogus"); err == nil {
		t.Fatalf("expected error for unrecognized token")
	}
}
