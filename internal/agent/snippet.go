package agent

import (
	"fmt"
	"strings"

	"github.com/dshills/quorum/internal/diff"
)

// DefaultSnippetLines is the default number of hunk lines shown to a model.
const DefaultSnippetLines = 60

// Snippet renders a hunk for the model: the hunk header, then each displayed
// line as "<rel>|<tag>| <text>" with rel counting from 1. Lines past
// maxLines are dropped and replaced by a truncation marker.
func Snippet(h diff.Hunk, maxLines int) string {
	if maxLines <= 0 {
		maxLines = DefaultSnippetLines
	}
	var b strings.Builder
	b.WriteString(h.Header)
	if h.Section != "" {
		b.WriteString(" ")
		b.WriteString(h.Section)
	}
	b.WriteString("\n")

	shown := min(len(h.Lines), maxLines)
	for i, l := range h.Lines[:shown] {
		fmt.Fprintf(&b, "%d|%s| %s\n", i+1, l.Kind.Tag(), l.Text)
	}
	if extra := len(h.Lines) - shown; extra > 0 {
		fmt.Fprintf(&b, "... (%d more lines truncated)\n", extra)
	}
	return b.String()
}
