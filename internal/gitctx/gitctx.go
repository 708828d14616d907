package gitctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/glob"
)

// Options controls how diffs are gathered.
type Options struct {
	// Dir is the repository directory; empty means the working directory.
	Dir          string
	ContextLines int
	MaxDiffBytes int
	Include      []string
	Exclude      []string
}

// Result holds a collected diff and where it came from.
type Result struct {
	Diff  string
	Files []string
	Mode  string
	Range string
	Repo  RepoMeta
	// Omitted lists files dropped by the byte budget.
	Omitted []string
}

// Truncated reports whether the byte budget dropped any file.
func (r Result) Truncated() bool { return len(r.Omitted) > 0 }

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// GetRepoMeta collects repository metadata from git.
func GetRepoMeta(ctx context.Context, dir string) (RepoMeta, error) {
	root, err := git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	// A repository without commits has no HEAD yet.
	head, _ := git(ctx, dir, "rev-parse", "HEAD")
	branch, _ := git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Unstaged returns the diff of the working tree against the index.
func Unstaged(ctx context.Context, opts Options) (Result, error) {
	out, err := git(ctx, opts.Dir, diffArgs(opts)...)
	if err != nil {
		return Result{}, fmt.Errorf("git diff: %w", err)
	}
	return build(ctx, out, "unstaged", "", opts), nil
}

// Staged returns the diff of the index against HEAD.
func Staged(ctx context.Context, opts Options) (Result, error) {
	out, err := git(ctx, opts.Dir, diffArgs(opts, "--cached")...)
	if err != nil {
		return Result{}, fmt.Errorf("git diff --cached: %w", err)
	}
	return build(ctx, out, "staged", "", opts), nil
}

// Commit returns the changes introduced by sha. A root commit is diffed
// against the empty tree.
func Commit(ctx context.Context, sha string, opts Options) (Result, error) {
	out, err := git(ctx, opts.Dir, diffArgs(opts, sha+"~1", sha)...)
	if err != nil {
		showArgs := []string{"show", "--format=", "--no-color"}
		if opts.ContextLines > 0 {
			showArgs = append(showArgs, fmt.Sprintf("-U%d", opts.ContextLines))
		}
		out, err = git(ctx, opts.Dir, append(showArgs, sha)...)
		if err != nil {
			return Result{}, fmt.Errorf("git show %s: %w", sha, err)
		}
	}
	return build(ctx, out, "commit", sha, opts), nil
}

// Range returns the combined diff of a revision range. With mergeBase, "a..b"
// is diffed from the merge base of a and b.
func Range(ctx context.Context, revRange string, mergeBase bool, opts Options) (Result, error) {
	diffRange := revRange
	if mergeBase && strings.Contains(revRange, "..") && !strings.Contains(revRange, "...") {
		diffRange = strings.Replace(revRange, "..", "...", 1)
	}
	out, err := git(ctx, opts.Dir, diffArgs(opts, diffRange)...)
	if err != nil {
		return Result{}, fmt.Errorf("git diff %s: %w", revRange, err)
	}
	return build(ctx, out, "range", revRange, opts), nil
}

// File reads a unified diff from path, or from stdin when path is "-".
// Blank input is a *diff.FormatError.
func File(path string, stdin io.Reader, opts Options) (Result, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading diff %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Result{}, &diff.FormatError{Msg: "empty diff"}
	}
	res := filter(string(data), opts)
	res.Mode = "file"
	if path != "-" {
		res.Range = path
	}
	return res, nil
}

// Snippet turns content into a diff for review. Without base, every line is
// an addition to a new file; with base, it is a real diff from base.
func Snippet(ctx context.Context, content, path, base string) (Result, error) {
	if path == "" {
		path = "snippet"
	}
	if base == "" {
		return Result{Diff: newFileDiff(path, content), Files: []string{path}, Mode: "snippet"}, nil
	}

	tmp, err := os.MkdirTemp("", "quorum-snippet-*")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	name := filepath.Base(path)
	for dir, body := range map[string]string{"old": base, "new": content} {
		if err := os.MkdirAll(filepath.Join(tmp, dir), 0o755); err != nil {
			return Result{}, err
		}
		if err := os.WriteFile(filepath.Join(tmp, dir, name), []byte(body), 0o644); err != nil {
			return Result{}, err
		}
	}

	// --no-index exits 1 when the files differ.
	out, err := git(ctx, tmp, "diff", "--no-index", "--no-color", "old/"+name, "new/"+name)
	if err != nil && out == "" {
		return Result{}, fmt.Errorf("git diff --no-index: %w", err)
	}
	out = relabel(out, "a/old/"+name, "a/"+path)
	out = relabel(out, "b/new/"+name, "b/"+path)
	return Result{Diff: out, Files: []string{path}, Mode: "snippet"}, nil
}

// relabel rewrites from to to in file header lines only.
func relabel(diff, from, to string) string {
	lines := strings.SplitAfter(diff, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "diff --git ") || strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "+++ ") {
			lines[i] = strings.ReplaceAll(l, from, to)
		}
	}
	return strings.Join(lines, "")
}

func newFileDiff(path, content string) string {
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("new file mode 100644\n--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, l := range lines {
		b.WriteString("+")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

func diffArgs(opts Options, extra ...string) []string {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	return append(args, extra...)
}

func build(ctx context.Context, diff, mode, rangeStr string, opts Options) Result {
	res := filter(diff, opts)
	res.Mode = mode
	res.Range = rangeStr
	// Metadata is best effort; the diff is already in hand.
	res.Repo, _ = GetRepoMeta(ctx, opts.Dir)
	return res
}

// filter drops excluded or not-included files, then applies the byte budget
// one whole file section at a time.
func filter(diff string, opts Options) Result {
	var res Result
	var b strings.Builder
	for _, section := range splitSections(diff) {
		path := sectionPath(section)
		if path != "" {
			if len(opts.Include) > 0 && !glob.MatchAny(path, opts.Include) {
				continue
			}
			if glob.MatchAny(path, opts.Exclude) {
				continue
			}
		}
		if opts.MaxDiffBytes > 0 && b.Len()+len(section) > opts.MaxDiffBytes {
			if path != "" {
				res.Omitted = append(res.Omitted, path)
			}
			continue
		}
		b.WriteString(section)
		if path != "" {
			res.Files = append(res.Files, path)
		}
	}
	res.Diff = b.String()
	return res
}

// splitSections splits a diff into per-file sections. Git diffs split at
// "diff --git" lines; plain unified diffs split at each "---"/"+++" pair.
func splitSections(diff string) []string {
	if diff == "" {
		return nil
	}
	lines := strings.SplitAfter(diff, "\n")
	var sections []string
	var cur strings.Builder
	gitMode := false
	flush := func() {
		if cur.Len() > 0 {
			sections = append(sections, cur.String())
			cur.Reset()
		}
	}
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "diff --git "):
			gitMode = true
			flush()
		case !gitMode && strings.HasPrefix(l, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			flush()
		}
		cur.WriteString(l)
	}
	flush()
	return sections
}

func sectionPath(section string) string {
	var oldPath, header string
scan:
	for _, l := range strings.Split(section, "\n") {
		switch {
		case strings.HasPrefix(l, "@@"):
			break scan
		case strings.HasPrefix(l, "+++ "):
			if p := headerPath(l[4:], "b/"); p != "/dev/null" {
				return p
			}
			return oldPath
		case strings.HasPrefix(l, "--- "):
			oldPath = headerPath(l[4:], "a/")
		case strings.HasPrefix(l, "diff --git "):
			header = l
		}
	}
	// Renames, mode changes and binaries carry no ---/+++ lines.
	if i := strings.LastIndex(header, " b/"); i >= 0 {
		return strings.Trim(header[i+3:], "\"")
	}
	return ""
}

func headerPath(s, prefix string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(strings.TrimSpace(s), "\"")
	return strings.TrimPrefix(s, prefix)
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
