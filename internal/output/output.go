package output

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dshills/quorum/internal/review"
)

// Writer writes a report in one format.
type Writer interface {
	Write(w io.Writer, report *review.Report) error
}

// Formats lists the supported format names.
func Formats() []string { return []string{"text", "json", "markdown", "sarif"} }

// Get returns the writer for format.
func Get(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes report to outPath, or to stdout when outPath is empty.
func WriteReport(report *review.Report, format, outPath string, stdout io.Writer) error {
	writer, err := Get(format)
	if err != nil {
		return err
	}
	if outPath == "" {
		return writer.Write(stdout, report)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// errWriter remembers the first write error so renderers can print freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func groupByPath(comments []review.Comment) ([]string, map[string][]review.Comment) {
	var order []string
	groups := make(map[string][]review.Comment)
	for _, c := range comments {
		if _, ok := groups[c.Path]; !ok {
			order = append(order, c.Path)
		}
		groups[c.Path] = append(groups[c.Path], c)
	}
	return order, groups
}

func groupByCategory(comments []review.Comment) map[review.Category][]review.Comment {
	groups := make(map[review.Category][]review.Comment)
	for _, c := range comments {
		groups[c.Category] = append(groups[c.Category], c)
	}
	return groups
}

func location(c review.Comment) string {
	if c.Side == review.SideOld {
		return fmt.Sprintf("%s:%d (removed)", c.Path, c.Line)
	}
	return fmt.Sprintf("%s:%d", c.Path, c.Line)
}

func itoa(n int) string { return strconv.Itoa(n) }

func percent(f float64) string { return fmt.Sprintf("%.0f%%", f*100) }
