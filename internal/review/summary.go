package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/quorum/internal/llm"
)

// NoIssuesSummary is the summary of a review with no comments.
const NoIssuesSummary = "No issues found in the code review."

const summarySystemPrompt = "You are a code review summarizer. Provide concise, actionable summaries."

// Caller makes one model call. *llm.Client implements it.
type Caller interface {
	Call(ctx context.Context, req llm.Request) (string, error)
}

// Summarizer writes the short prose summary of a report.
type Summarizer struct {
	caller      Caller
	temperature float64
	maxTokens   int
	topN        int
}

// NewSummarizer creates a summarizer. topN bounds how many comments are
// quoted in the prompt; zero means 10.
func NewSummarizer(caller Caller, temperature float64, maxTokens, topN int) *Summarizer {
	if topN <= 0 {
		topN = 10
	}
	return &Summarizer{caller: caller, temperature: temperature, maxTokens: maxTokens, topN: topN}
}

// Summarize returns the fixed no-issues text without a model call when there
// are no comments, and otherwise asks the model for a two to three sentence
// summary of the per-category counts and the most confident comments.
func (s *Summarizer) Summarize(ctx context.Context, comments []Comment) (string, error) {
	if len(comments) == 0 {
		return NoIssuesSummary, nil
	}
	text, err := s.caller.Call(ctx, llm.Request{
		System:      summarySystemPrompt,
		User:        summaryPrompt(comments, s.topN),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summary call: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("summary call: empty response")
	}
	return text, nil
}

func summaryPrompt(comments []Comment, topN int) string {
	counts := make(map[Category]int)
	for _, c := range comments {
		counts[c.Category]++
	}

	var b strings.Builder
	b.WriteString("Based on this code review analysis:\n\n")
	for _, cat := range Categories() {
		if n := counts[cat]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d issue(s)\n", strings.ToUpper(string(cat[:1]))+string(cat[1:]), n)
		}
	}
	fmt.Fprintf(&b, "\nTotal issues found: %d\n", len(comments))

	top := make([]Comment, len(comments))
	copy(top, comments)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Confidence > top[j].Confidence })
	if len(top) > topN {
		top = top[:topN]
	}
	b.WriteString("\nMost confident findings:\n")
	for _, c := range top {
		fmt.Fprintf(&b, "- %s:%d [%s, %.2f] %s\n", c.Path, c.Line, c.Category, c.Confidence, firstLine(c.Body))
	}
	b.WriteString("\nProvide a brief 2-3 sentence summary highlighting the most critical findings.")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
