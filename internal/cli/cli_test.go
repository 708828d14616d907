package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/providers"
	"github.com/dshills/quorum/internal/review"
)

const oneFileDiff = "diff --git a/x.go b/x.go\n--- a/x.go\n+++ b/x.go\n@@ -1 +1 @@\n-a := 1\n+b := 1\n"

const logicReply = `{"findings":[{"line":2,"side":"new","category":"logic","confidence":0.9,"body":"b shadows an outer variable."}]}`

type fakeBackend struct {
	reply string
	err   error
	calls atomic.Int32
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-1" }

func (f *fakeBackend) Complete(_ context.Context, _ providers.Request) (providers.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return providers.Response{}, f.err
	}
	return providers.Response{Content: f.reply}, nil
}

// isolate points every quorum directory at a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
}

type result struct {
	stdout, stderr string
	code           int
}

func runCLI(t *testing.T, backend llm.Backend, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr, strings.NewReader(stdin))
	a.newBackend = func(context.Context, string, string, providers.Options) (llm.Backend, error) {
		if backend == nil {
			return nil, errors.New("ANTHROPIC_API_KEY environment variable is not set")
		}
		return backend, nil
	}
	code := a.run(args)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func decodeReport(t *testing.T, s string) review.Report {
	t.Helper()
	var r review.Report
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, s)
	}
	return r
}

func TestVersion(t *testing.T) {
	res := runCLI(t, nil, "", "version")
	if res.code != ExitSuccess || !strings.Contains(res.stdout, "quorum version "+Version) {
		t.Errorf("version = %d %q", res.code, res.stdout)
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	res := runCLI(t, nil, "", "review", "staged", "--bogus")
	if res.code != ExitUsageError {
		t.Errorf("code = %d, want %d", res.code, ExitUsageError)
	}
}

func TestReviewFile(t *testing.T) {
	isolate(t)
	backend := &fakeBackend{reply: logicReply}
	path := writeFile(t, "change.diff", oneFileDiff)

	res := runCLI(t, backend, "", "review", "file", path, "--format", "json", "--no-summary", "--no-history")
	if res.code != ExitSuccess {
		t.Fatalf("code = %d stderr %s", res.code, res.stderr)
	}
	report := decodeReport(t, res.stdout)
	if report.TotalComments != 1 {
		t.Fatalf("comments = %+v, want the four identical findings merged into one", report.Comments)
	}
	c := report.Comments[0]
	if c.Path != "x.go" || c.Line != 1 || c.Side != review.SideNew || c.Category != review.CategoryLogic {
		t.Errorf("comment = %+v", c)
	}
	if report.Source.Mode != "file" || report.Source.Range != path {
		t.Errorf("source = %+v", report.Source)
	}
	if report.Tasks.Total != 4 || report.Tasks.Succeeded != 4 {
		t.Errorf("tasks = %+v", report.Tasks)
	}
	if got := backend.calls.Load(); got != 4 {
		t.Errorf("backend calls = %d, want one per agent", got)
	}
}

func TestReviewFile_FailOn(t *testing.T) {
	isolate(t)
	path := writeFile(t, "change.diff", oneFileDiff)

	res := runCLI(t, &fakeBackend{reply: logicReply}, "", "review", "file", path, "--fail-on", "logic", "--no-summary", "--no-history")
	if res.code != ExitFindings {
		t.Errorf("fail-on logic: code = %d, want %d", res.code, ExitFindings)
	}
	res = runCLI(t, &fakeBackend{reply: logicReply}, "", "review", "file", path, "--fail-on", "security", "--no-summary", "--no-history")
	if res.code != ExitSuccess {
		t.Errorf("fail-on security: code = %d, want %d", res.code, ExitSuccess)
	}
	res = runCLI(t, &fakeBackend{reply: logicReply}, "", "review", "file", path, "--fail-on", "any", "--min-confidence", "0.95", "--no-summary", "--no-history")
	if res.code != ExitSuccess {
		t.Errorf("comments below min confidence should not fail: code = %d", res.code)
	}
}

func TestReviewFile_Stdin(t *testing.T) {
	isolate(t)
	res := runCLI(t, &fakeBackend{reply: `{"findings": []}`}, oneFileDiff, "review", "file", "-", "--format", "json", "--no-history")
	if res.code != ExitSuccess {
		t.Fatalf("code = %d stderr %s", res.code, res.stderr)
	}
	report := decodeReport(t, res.stdout)
	if report.TotalComments != 0 || report.FilesReviewed != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Summary != review.NoIssuesSummary {
		t.Errorf("summary = %q", report.Summary)
	}
}

func TestReviewFile_Errors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name    string
		backend llm.Backend
		diff    string
		want    int
		stderr  string
	}{
		{"invalid diff", &fakeBackend{reply: logicReply}, "this is not a diff\n", ExitUsageError, "no file headers"},
		{"missing credentials", nil, oneFileDiff, ExitAuthError, "ANTHROPIC_API_KEY"},
		{"every task fails", &fakeBackend{err: &providers.APIError{Provider: "fake", StatusCode: 400, Message: "bad request"}}, oneFileDiff, ExitRuntimeError, "every review task failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "change.diff", tt.diff)
			res := runCLI(t, tt.backend, "", "review", "file", path, "--no-history")
			if res.code != tt.want {
				t.Errorf("code = %d, want %d (stderr %s)", res.code, tt.want, res.stderr)
			}
			if !strings.Contains(res.stderr, tt.stderr) {
				t.Errorf("stderr = %q, want substring %q", res.stderr, tt.stderr)
			}
		})
	}
}

func TestReviewFile_EmptyDiffIsUsageError(t *testing.T) {
	isolate(t)
	backend := &fakeBackend{reply: logicReply}
	path := writeFile(t, "empty.diff", "")

	for _, args := range [][]string{
		{"review", "file", path},
		{"review", "file", "-"},
	} {
		res := runCLI(t, backend, "  \n", args...)
		if res.code != ExitUsageError || !strings.Contains(res.stderr, "empty diff") {
			t.Errorf("%v = %d %q", args, res.code, res.stderr)
		}
	}
	if backend.calls.Load() != 0 {
		t.Error("no model call expected for an empty diff")
	}
}

func TestReviewFile_SetupFailuresSetExitCode(t *testing.T) {
	isolate(t)
	path := writeFile(t, "change.diff", oneFileDiff)
	badRules := writeFile(t, "rules.json", "{not json")

	tests := []struct {
		name    string
		backend llm.Backend
		args    []string
		want    int
	}{
		{"unknown agent", &fakeBackend{reply: logicReply}, []string{"--agents", "bogus"}, ExitUsageError},
		{"bad rules file", &fakeBackend{reply: logicReply}, []string{"--rules", badRules}, ExitUsageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"review", "file", path, "--no-history"}, tt.args...)
			res := runCLI(t, tt.backend, "", args...)
			if res.code != tt.want {
				t.Errorf("code = %d, want %d (stderr %s)", res.code, tt.want, res.stderr)
			}
		})
	}
}

func TestReviewFile_InvalidConfigIsUsageError(t *testing.T) {
	isolate(t)
	path := writeFile(t, "change.diff", oneFileDiff)
	res := runCLI(t, &fakeBackend{reply: logicReply}, "", "review", "file", path, "--format", "xml")
	if res.code != ExitUsageError {
		t.Errorf("code = %d, want %d", res.code, ExitUsageError)
	}
}

func TestHistory(t *testing.T) {
	isolate(t)
	path := writeFile(t, "change.diff", oneFileDiff)
	res := runCLI(t, &fakeBackend{reply: logicReply}, "", "review", "file", path, "--format", "json", "--no-summary")
	if res.code != ExitSuccess {
		t.Fatalf("review code = %d stderr %s", res.code, res.stderr)
	}
	id := decodeReport(t, res.stdout).ID

	res = runCLI(t, nil, "", "history", "list")
	if res.code != ExitSuccess || !strings.Contains(res.stdout, id) {
		t.Errorf("history list = %d %q", res.code, res.stdout)
	}

	res = runCLI(t, nil, "", "history", "show", id, "--format", "json")
	if res.code != ExitSuccess {
		t.Fatalf("history show code = %d stderr %s", res.code, res.stderr)
	}
	if got := decodeReport(t, res.stdout); got.ID != id || got.TotalComments != 1 {
		t.Errorf("shown report = %+v", got)
	}

	res = runCLI(t, nil, "", "history", "show", "missing")
	if res.code != ExitRuntimeError {
		t.Errorf("missing id code = %d", res.code)
	}
}

func TestConfigCommands(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	res := runCLI(t, nil, "", "--config", cfgPath, "config", "path")
	if strings.TrimSpace(res.stdout) != cfgPath {
		t.Errorf("config path = %q", res.stdout)
	}

	res = runCLI(t, nil, "", "--config", cfgPath, "config", "set", "llm.max_attempts", "5")
	if res.code != ExitSuccess {
		t.Fatalf("config set code = %d stderr %s", res.code, res.stderr)
	}
	res = runCLI(t, nil, "", "--config", cfgPath, "config", "show")
	if !strings.Contains(res.stdout, "llm.max_attempts") || !strings.Contains(res.stdout, "5") {
		t.Errorf("config show missing the new value:\n%s", res.stdout)
	}

	res = runCLI(t, nil, "", "--config", cfgPath, "config", "set", "nope", "1")
	if res.code != ExitUsageError {
		t.Errorf("unknown key code = %d", res.code)
	}
}

func TestCacheCommands(t *testing.T) {
	isolate(t)
	path := writeFile(t, "change.diff", oneFileDiff)
	if res := runCLI(t, &fakeBackend{reply: logicReply}, "", "review", "file", path, "--no-summary", "--no-history"); res.code != ExitSuccess {
		t.Fatalf("review code = %d", res.code)
	}

	res := runCLI(t, nil, "", "cache", "show")
	if !strings.Contains(res.stdout, "Entries:   4") {
		t.Errorf("cache show = %q", res.stdout)
	}
	res = runCLI(t, nil, "", "cache", "clear")
	if !strings.Contains(res.stdout, "Removed 4") {
		t.Errorf("cache clear = %q", res.stdout)
	}
}

func TestAgentsAndModels(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "", "agents")
	for _, name := range []string{"logic", "style", "security", "performance"} {
		if !strings.Contains(res.stdout, name) {
			t.Errorf("agents output missing %s", name)
		}
	}
	res = runCLI(t, nil, "", "models")
	for _, p := range []string{"anthropic:", "openai:", "gemini:", "ollama:"} {
		if !strings.Contains(res.stdout, p) {
			t.Errorf("models output missing %s", p)
		}
	}
}

func TestGitHubCommand(t *testing.T) {
	isolate(t)
	var posted atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, oneFileDiff)
	})
	mux.HandleFunc("POST /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		posted.Store(true)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": 1}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	t.Setenv("GITHUB_TOKEN", "test-token")

	res := runCLI(t, &fakeBackend{reply: logicReply}, "", "github", "7",
		"--owner", "acme", "--repo", "widgets", "--api-url", ts.URL,
		"--post", "--format", "json", "--no-summary", "--no-history")
	if res.code != ExitSuccess {
		t.Fatalf("code = %d stderr %s", res.code, res.stderr)
	}
	report := decodeReport(t, res.stdout)
	if report.Source.Repo != "acme/widgets" || report.Source.PR != 7 || report.TotalComments != 1 {
		t.Errorf("report = %+v", report)
	}
	if !posted.Load() {
		t.Error("review was not posted")
	}
}

func TestGitHubCommand_Errors(t *testing.T) {
	isolate(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message": "Not Found"}`)
	}))
	defer ts.Close()

	t.Setenv("GITHUB_TOKEN", "")
	res := runCLI(t, &fakeBackend{}, "", "github", "7", "--owner", "o", "--repo", "r", "--api-url", ts.URL)
	if res.code != ExitAuthError {
		t.Errorf("missing token code = %d", res.code)
	}

	t.Setenv("GITHUB_TOKEN", "test-token")
	res = runCLI(t, &fakeBackend{}, "", "github", "7", "--owner", "o", "--repo", "r", "--api-url", ts.URL)
	if res.code != ExitRuntimeError || !strings.Contains(res.stderr, "not_found") {
		t.Errorf("not found = %d %q", res.code, res.stderr)
	}

	res = runCLI(t, &fakeBackend{}, "", "github", "abc")
	if res.code != ExitUsageError {
		t.Errorf("bad PR number code = %d", res.code)
	}
}

func TestSplitComma(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
		{",,,", nil},
	}
	for _, tt := range tests {
		got := splitComma(tt.input)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitComma(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
