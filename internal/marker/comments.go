// Package marker implements the FX:BEGIN/END comment-marker round-trip:
// rendering ordered snippet groups into language-commented text and
// parsing edited text back into per-snippet patches.
package marker

// CommentStyle names the open/close tokens a language uses to delimit a
// marker line. Close is empty for single-line comment styles ("#", ";").
type CommentStyle struct {
	Open  string
	Close string
}

// CommentStyles maps a lang tag to its comment delimiters. It is an
// exported, mutable package-level table so embedders can register
// additional languages without forking the package.
var CommentStyles = map[string]CommentStyle{
	"js":     {"/*", "*/"},
	"jsx":    {"/*", "*/"},
	"ts":     {"/*", "*/"},
	"tsx":    {"/*", "*/"},
	"go":     {"/*", "*/"},
	"c":      {"/*", "*/"},
	"cpp":    {"/*", "*/"},
	"java":   {"/*", "*/"},
	"css":    {"/*", "*/"},
	"scss":   {"/*", "*/"},
	"python": {"#", ""},
	"py":     {"#", ""},
	"shell":  {"#", ""},
	"sh":     {"#", ""},
	"bash":   {"#", ""},
	"yaml":   {"#", ""},
	"ini":    {";", ""},
	"toml":   {"#", ""},
}

// hoistableLangs are the languages render_view hoists single-line
// top-of-snippet imports for.
var hoistableLangs = map[string]bool{
	"js": true, "jsx": true, "ts": true, "tsx": true,
}

func styleFor(lang string) CommentStyle {
	if s, ok := CommentStyles[lang]; ok {
		return s
	}
	return CommentStyle{"#", ""}
}
