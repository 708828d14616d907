package review

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/providers"
)

// stubReviewer returns one comment per file on the first added line, or the
// configured error.
type stubReviewer struct {
	name  string
	cat   Category
	err   error
	block chan struct{}
	panic bool
	calls atomic.Int32
}

func (s *stubReviewer) Name() string { return s.name }

func (s *stubReviewer) Review(ctx context.Context, fc diff.FileChange) Outcome {
	s.calls.Add(1)
	if s.panic {
		panic("reviewer bug")
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return Outcome{Agent: s.name, Path: fc.Path, Err: s.err}
	}
	return Outcome{Agent: s.name, Path: fc.Path, Comments: []Comment{{
		Path:       fc.Path,
		Line:       fc.Hunks[0].New.Start,
		Side:       SideNew,
		Category:   s.cat,
		Confidence: 0.8,
		Body:       s.name + " finding",
		Agent:      s.name,
	}}}
}

const threeFileDiff = `diff --git a/b.go b/b.go
--- a/b.go
+++ b/b.go
@@ -1,1 +1,2 @@
 package b
+var x = 1
diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -5,1 +5,2 @@
 package a
+var y = 2
diff --git a/img.png b/img.png
Binary files a/img.png and b/img.png differ
`

func parseFiles(t *testing.T) []diff.FileChange {
	t.Helper()
	files, err := diff.Parse(threeFileDiff)
	if err != nil {
		t.Fatalf("diff.Parse: %v", err)
	}
	return files
}

func TestRun_AllSucceed(t *testing.T) {
	reviewers := []Reviewer{
		&stubReviewer{name: "logic", cat: CategoryLogic},
		&stubReviewer{name: "style", cat: CategoryStyle},
	}
	o := New(reviewers, Options{Version: "test"})

	report, err := o.Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.FilesReviewed != 2 {
		t.Errorf("FilesReviewed = %d, want 2 (binary skipped)", report.FilesReviewed)
	}
	if report.Tasks.Total != 4 || report.Tasks.Succeeded != 4 {
		t.Errorf("Tasks = %+v", report.Tasks)
	}
	if report.TotalComments != 4 || len(report.Comments) != 4 {
		t.Fatalf("comments = %d", report.TotalComments)
	}
	if report.FilesWithComments != 2 {
		t.Errorf("FilesWithComments = %d", report.FilesWithComments)
	}
	if report.Comments[0].Path != "a.go" || report.Comments[3].Path != "b.go" {
		t.Errorf("comments not sorted by path: %+v", report.Comments)
	}
	if report.ID == "" || report.Tool != "quorum" || report.Partial {
		t.Errorf("metadata = %+v", report)
	}
}

func TestRun_OneAgentFailsOthersSurvive(t *testing.T) {
	failing := &stubReviewer{name: "security", err: &llm.UnavailableError{Backend: "fake", Attempts: 3, Err: &providers.APIError{StatusCode: 503}}}
	reviewers := []Reviewer{
		&stubReviewer{name: "logic", cat: CategoryLogic},
		&stubReviewer{name: "style", cat: CategoryStyle},
		failing,
		&stubReviewer{name: "performance", cat: CategoryPerformance},
	}
	o := New(reviewers, Options{})

	report, err := o.Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.TotalComments != 6 {
		t.Errorf("TotalComments = %d, want 6", report.TotalComments)
	}
	for _, c := range report.Comments {
		if c.Agent == "security" {
			t.Errorf("failed agent contributed %+v", c)
		}
	}
	if report.Tasks.Failed != 2 || len(report.Failures) != 2 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	for _, f := range report.Failures {
		if f.Agent != "security" || f.Class != ClassModelUnavailable {
			t.Errorf("failure = %+v", f)
		}
	}
	if failing.calls.Load() != 2 {
		t.Errorf("failing agent called %d times, want 2", failing.calls.Load())
	}
}

func TestRun_EveryTaskFailsStillReturnsReport(t *testing.T) {
	o := New([]Reviewer{&stubReviewer{name: "logic", err: errors.New("nope")}}, Options{})
	report, err := o.Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Tasks.Failed != 2 || report.TotalComments != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_PanicContained(t *testing.T) {
	reviewers := []Reviewer{
		&stubReviewer{name: "logic", cat: CategoryLogic},
		&stubReviewer{name: "style", panic: true},
	}
	report, err := New(reviewers, Options{}).Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Tasks.Failed != 2 {
		t.Errorf("Failed = %d, want 2", report.Tasks.Failed)
	}
	for _, f := range report.Failures {
		if f.Agent != "style" || f.Class != ClassInternal || !strings.Contains(f.Reason, "reviewer bug") {
			t.Errorf("failure = %+v", f)
		}
	}
	if report.TotalComments != 2 {
		t.Errorf("TotalComments = %d", report.TotalComments)
	}
}

func TestRun_DuplicatesAcrossAgentsMerged(t *testing.T) {
	// Both reviewers name themselves "dup" so their bodies collide.
	reviewers := []Reviewer{
		&stubReviewer{name: "dup", cat: CategoryLogic},
		&stubReviewer{name: "dup", cat: CategorySecurity},
	}
	report, err := New(reviewers, Options{}).Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.TotalComments != 2 {
		t.Errorf("TotalComments = %d, want 2 (one per file)", report.TotalComments)
	}
}

func TestRun_NoReviewableFiles(t *testing.T) {
	files, err := diff.Parse("diff --git a/x b/y\nsimilarity index 100%\nrename from x\nrename to y\n")
	if err != nil {
		t.Fatalf("diff.Parse: %v", err)
	}
	caller := &countingCaller{}
	o := New([]Reviewer{&stubReviewer{name: "logic"}}, Options{Summarizer: NewSummarizer(caller, 0.3, 100, 0)})
	report, err := o.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.FilesReviewed != 0 || report.Tasks.Total != 0 || report.TotalComments != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Summary != NoIssuesSummary {
		t.Errorf("Summary = %q", report.Summary)
	}
	if caller.calls.Load() != 0 {
		t.Error("no-issues summary should not call the model")
	}
}

func TestRun_RequestDeadlineReturnsPartial(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	reviewers := []Reviewer{
		&stubReviewer{name: "logic", cat: CategoryLogic},
		&stubReviewer{name: "slow", cat: CategoryStyle, block: release},
	}
	caller := &countingCaller{}
	o := New(reviewers, Options{
		RequestTimeout: 50 * time.Millisecond,
		Summarizer:     NewSummarizer(caller, 0.3, 100, 0),
	})

	start := time.Now()
	report, err := o.Run(context.Background(), parseFiles(t))
	if time.Since(start) > 5*time.Second {
		t.Fatal("Run did not honour the request timeout")
	}
	var deadlineErr *DeadlineError
	if !errors.As(err, &deadlineErr) {
		t.Fatalf("error = %v, want *DeadlineError", err)
	}
	if Classify(err) != ClassRequestTimeout {
		t.Errorf("Classify = %q", Classify(err))
	}
	if report == nil || !report.Partial {
		t.Fatalf("report = %+v, want partial", report)
	}
	if report.TotalComments != 2 {
		t.Errorf("TotalComments = %d, want the 2 fast comments", report.TotalComments)
	}
	if deadlineErr.Completed != 2 || deadlineErr.Total != 4 {
		t.Errorf("DeadlineError = %+v", deadlineErr)
	}
	if report.Summary != "" || caller.calls.Load() != 0 {
		t.Error("summary should be skipped on a partial run")
	}
}

func TestRun_Summary(t *testing.T) {
	caller := &countingCaller{reply: "  Two minor issues.  "}
	o := New([]Reviewer{&stubReviewer{name: "logic", cat: CategoryLogic}}, Options{
		Summarizer: NewSummarizer(caller, 0.3, 100, 0),
	})
	report, err := o.Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Summary != "Two minor issues." {
		t.Errorf("Summary = %q", report.Summary)
	}
}

func TestRun_SummaryFailureOmitted(t *testing.T) {
	caller := &countingCaller{err: &llm.TimeoutError{Backend: "fake"}}
	o := New([]Reviewer{&stubReviewer{name: "logic", cat: CategoryLogic}}, Options{
		Summarizer: NewSummarizer(caller, 0.3, 100, 0),
	})
	report, err := o.Run(context.Background(), parseFiles(t))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Summary != "" {
		t.Errorf("Summary = %q, want omitted", report.Summary)
	}
	if report.TotalComments != 2 {
		t.Errorf("TotalComments = %d", report.TotalComments)
	}
}

func TestSetReviewers(t *testing.T) {
	o := New([]Reviewer{&stubReviewer{name: "logic"}}, Options{})
	o.SetReviewers([]Reviewer{&stubReviewer{name: "a"}, &stubReviewer{name: "b"}})
	if got := len(o.Reviewers()); got != 2 {
		t.Errorf("Reviewers = %d, want 2", got)
	}
}

type countingCaller struct {
	calls atomic.Int32
	reply string
	err   error
}

func (c *countingCaller) Call(context.Context, llm.Request) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}
