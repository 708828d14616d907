package review

import (
	"sort"
	"time"
)

// Category is the review concern a comment belongs to.
type Category string

const (
	CategoryLogic       Category = "logic"
	CategoryStyle       Category = "style"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryLogic, CategoryStyle, CategorySecurity, CategoryPerformance}
}

// ParseCategory returns the category named s and whether it is known.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Side says which version of the file a comment's line number refers to.
type Side string

const (
	SideNew Side = "new"
	SideOld Side = "old"
)

// Provenance records how a comment was recovered from a model response.
type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceHeuristic  Provenance = "heuristic"
)

// Comment is a single review finding anchored to a file line.
type Comment struct {
	Path       string     `json:"path"`
	Line       int        `json:"line"`
	Side       Side       `json:"side"`
	Category   Category   `json:"category"`
	Confidence float64    `json:"confidence"`
	Body       string     `json:"body"`
	Agent      string     `json:"agent,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// Outcome is what one agent produced for one file. Err is set when any part
// of the work failed; Comments still holds whatever succeeded.
type Outcome struct {
	Agent    string
	Path     string
	Comments []Comment
	Err      error
}

// TaskFailure describes a failed agent/file task in the report.
type TaskFailure struct {
	Agent  string `json:"agent"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Class  Class  `json:"class"`
}

// Tasks counts agent/file tasks by result.
type Tasks struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Source describes where the reviewed diff came from.
type Source struct {
	Mode   string `json:"mode"`
	Range  string `json:"range,omitempty"`
	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`
	Head   string `json:"head,omitempty"`
	PR     int    `json:"pr,omitempty"`
}

// Timing contains per-phase wall times.
type Timing struct {
	ReviewMs  int64 `json:"reviewMs"`
	SummaryMs int64 `json:"summaryMs,omitempty"`
	TotalMs   int64 `json:"totalMs"`
}

// Report is the aggregate result of a review run.
type Report struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Source    Source    `json:"source"`
	Backend   string    `json:"backend,omitempty"`
	Model     string    `json:"model,omitempty"`

	Comments          []Comment `json:"comments"`
	TotalComments     int       `json:"total_comments"`
	FilesReviewed     int       `json:"files_reviewed"`
	FilesWithComments int       `json:"files_with_comments"`
	Summary           string    `json:"summary,omitempty"`

	Tasks    Tasks         `json:"tasks"`
	Failures []TaskFailure `json:"failures,omitempty"`
	Partial  bool          `json:"partial,omitempty"`
	Timing   Timing        `json:"timing"`
}

// CategoryCounts returns the number of comments per category.
func (r *Report) CategoryCounts() map[Category]int {
	counts := make(map[Category]int, 4)
	for _, c := range r.Comments {
		counts[c.Category]++
	}
	return counts
}

// Filter returns the comments at or above minConfidence.
func Filter(comments []Comment, minConfidence float64) []Comment {
	if minConfidence <= 0 {
		return comments
	}
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if c.Confidence >= minConfidence {
			out = append(out, c)
		}
	}
	return out
}

// ApplyMinConfidence drops comments below minConfidence and recomputes the
// comment and file counts.
func (r *Report) ApplyMinConfidence(minConfidence float64) {
	if minConfidence <= 0 {
		return
	}
	r.Comments = Filter(r.Comments, minConfidence)
	r.TotalComments = len(r.Comments)
	r.FilesWithComments = distinctPaths(r.Comments)
}

// SortComments orders comments by path, then line. The sort is stable so
// comments on the same line keep their relative order.
func SortComments(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].Path != comments[j].Path {
			return comments[i].Path < comments[j].Path
		}
		return comments[i].Line < comments[j].Line
	})
}

// MeetsThreshold reports whether any comment falls in a category named by
// failOn: "none" (or empty) never matches, "any" matches every comment, and
// otherwise failOn is a comma-separated category list.
func MeetsThreshold(comments []Comment, failOn []string) bool {
	if len(failOn) == 0 {
		return false
	}
	want := make(map[Category]bool, len(failOn))
	for _, f := range failOn {
		switch f {
		case "", "none":
			continue
		case "any":
			return len(comments) > 0
		}
		want[Category(f)] = true
	}
	for _, c := range comments {
		if want[c.Category] {
			return true
		}
	}
	return false
}
