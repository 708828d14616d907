package diff

import "fmt"

// Status describes what happened to a file in a diff.
type Status string

const (
	StatusModified Status = "modified"
	StatusAdded    Status = "added"
	StatusDeleted  Status = "deleted"
	StatusRenamed  Status = "renamed"
	StatusBinary   Status = "binary"
)

// LineKind tags a hunk line as context, added, or removed.
type LineKind int

const (
	Context LineKind = iota
	Added
	Removed
)

func (k LineKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "context"
	}
}

// Tag returns the single-character unified diff prefix for the kind.
func (k LineKind) Tag() string {
	switch k {
	case Added:
		return "+"
	case Removed:
		return "-"
	default:
		return " "
	}
}

// Range is a hunk range from an @@ header.
type Range struct {
	Start int `json:"start"`
	Count int `json:"count"`
}

// End returns the last line number covered by the range, or Start-1 when empty.
func (r Range) End() int {
	return r.Start + r.Count - 1
}

// Contains reports whether line n falls inside the range.
func (r Range) Contains(n int) bool {
	return r.Count > 0 && n >= r.Start && n <= r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("%d,%d", r.Start, r.Count)
}

// Line is a single content line inside a hunk. OldLine is set for context and
// removed lines, NewLine for context and added lines; the other is zero.
type Line struct {
	Kind    LineKind `json:"kind"`
	Text    string   `json:"text"`
	OldLine int      `json:"oldLine,omitempty"`
	NewLine int      `json:"newLine,omitempty"`
}

// Hunk is one @@ block. Old is nil for newly created files and New is nil for
// deleted files.
type Hunk struct {
	Old     *Range `json:"old,omitempty"`
	New     *Range `json:"new,omitempty"`
	Header  string `json:"header"`
	Section string `json:"section,omitempty"`
	Lines   []Line `json:"lines"`
}

// LineAt returns the i-th line of the hunk, counting from 1.
func (h Hunk) LineAt(i int) (Line, bool) {
	if i < 1 || i > len(h.Lines) {
		return Line{}, false
	}
	return h.Lines[i-1], true
}

// FileChange is every change the diff makes to one file.
type FileChange struct {
	Path    string `json:"path"`
	OldPath string `json:"oldPath,omitempty"`
	NewPath string `json:"newPath,omitempty"`
	Status  Status `json:"status"`
	Hunks   []Hunk `json:"hunks"`
}

// Reviewable returns the files that have at least one hunk.
func Reviewable(files []FileChange) []FileChange {
	var out []FileChange
	for _, f := range files {
		if len(f.Hunks) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// FormatError reports input that is not a usable unified diff.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid diff: line %d: %s", e.Line, e.Msg)
	}
	return "invalid diff: " + e.Msg
}
