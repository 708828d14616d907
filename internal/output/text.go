package output

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/quorum/internal/review"
)

// TextWriter writes a terminal report grouped by file. Colors are used only
// when the destination is a terminal.
type TextWriter struct{}

type textStyles struct {
	title, rule, path, muted, body, warn lipgloss.Style
	category                             map[review.Category]lipgloss.Style
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		title: r.NewStyle().Bold(true),
		rule:  r.NewStyle().Foreground(lipgloss.Color("240")),
		path:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		muted: r.NewStyle().Foreground(lipgloss.Color("245")),
		body:  r.NewStyle().PaddingLeft(4).Width(78),
		warn:  r.NewStyle().Foreground(lipgloss.Color("214")),
		category: map[review.Category]lipgloss.Style{
			review.CategoryLogic:       r.NewStyle().Foreground(lipgloss.Color("203")),
			review.CategorySecurity:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
			review.CategoryPerformance: r.NewStyle().Foreground(lipgloss.Color("214")),
			review.CategoryStyle:       r.NewStyle().Foreground(lipgloss.Color("111")),
		},
	}
}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	st := newTextStyles(w)
	ew := &errWriter{w: w}
	rule := st.rule.Render(strings.Repeat("-", 60))

	header := "Quorum code review"
	if report.Source.Mode != "" {
		header += " (" + report.Source.Mode + ")"
	}
	ew.println(st.title.Render(header))
	if report.Source.Range != "" {
		ew.printf("Range: %s\n", report.Source.Range)
	}
	if report.Source.Repo != "" {
		ew.printf("Repository: %s", report.Source.Repo)
		if report.Source.Branch != "" {
			ew.printf(" (branch: %s)", report.Source.Branch)
		}
		ew.println("")
	}
	if report.Source.PR > 0 {
		ew.printf("Pull request: #%d\n", report.Source.PR)
	}
	ew.println(rule)

	counts := report.CategoryCounts()
	ew.printf("Comments: %d across %d of %d file(s)", report.TotalComments, report.FilesWithComments, report.FilesReviewed)
	var parts []string
	for _, cat := range review.Categories() {
		if n := counts[cat]; n > 0 {
			parts = append(parts, st.category[cat].Render(string(cat))+": "+itoa(n))
		}
	}
	if len(parts) > 0 {
		ew.printf(" (%s)", strings.Join(parts, ", "))
	}
	ew.println("")
	ew.println(rule)

	if report.Partial {
		ew.println(st.warn.Render("Partial report: the review timed out before every task finished."))
	}
	for _, f := range report.Failures {
		ew.println(st.warn.Render("failed: " + f.Agent + " on " + f.Path + " (" + string(f.Class) + ")"))
	}

	if len(report.Comments) == 0 {
		ew.println("\nNo issues found.")
	}

	order, groups := groupByPath(report.Comments)
	for _, path := range order {
		ew.printf("\n%s\n", st.path.Render(path))
		for _, c := range groups[path] {
			loc := "line " + itoa(c.Line)
			if c.Side == review.SideOld {
				loc += " (removed)"
			}
			ew.printf("  %s  %s  %s\n",
				loc,
				st.category[c.Category].Render(string(c.Category)),
				st.muted.Render("confidence "+percent(c.Confidence)+" · "+c.Agent),
			)
			ew.println(st.body.Render(c.Body))
		}
	}

	if report.Summary != "" {
		ew.printf("\n%s\n", st.title.Render("Summary"))
		ew.println(st.body.Render(report.Summary))
	}

	ew.printf("\n%s\n", rule)
	ew.println(st.muted.Render("Completed in " + itoa(int(report.Timing.TotalMs)) + "ms (review " + itoa(int(report.Timing.ReviewMs)) + "ms, summary " + itoa(int(report.Timing.SummaryMs)) + "ms)"))
	return ew.err
}
