package agent

import (
	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/review"
)

// MapLine converts a snippet-relative line to a file line. Added lines map to
// the new file, removed lines to the old file, and context lines to the new
// file unless side asks for the old one. ok is false when rel is outside the
// displayed window (beyond window or beyond the hunk) or the mapped line is
// not positive.
func MapLine(h diff.Hunk, rel, window int, side review.Side) (line int, mapped review.Side, ok bool) {
	if window > 0 && rel > window {
		return 0, "", false
	}
	l, ok := h.LineAt(rel)
	if !ok {
		return 0, "", false
	}
	switch {
	case l.Kind == diff.Removed:
		line, mapped = l.OldLine, review.SideOld
	case l.Kind == diff.Context && side == review.SideOld:
		line, mapped = l.OldLine, review.SideOld
	default:
		line, mapped = l.NewLine, review.SideNew
	}
	if line <= 0 {
		return 0, "", false
	}
	return line, mapped, true
}
