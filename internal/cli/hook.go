package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	hookMarkerStart = "# >>> quorum pre-commit hook >>>"
	hookMarkerEnd   = "# <<< quorum pre-commit hook <<<"
)

func (a *app) hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Manage the git pre-commit hook",
	}

	var failOn, format string
	install := &cobra.Command{
		Use:   "install",
		Short: "Run quorum on staged changes before every commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := hookPath(cmd.Context(), "")
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			if err := installHook(path, hookScript(failOn, format)); err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			fmt.Fprintf(a.stdout, "Installed quorum pre-commit hook at %s\n", path)
			return nil
		},
	}
	install.Flags().StringVar(&failOn, "fail-on", "security,logic", "Categories that block the commit")
	install.Flags().StringVar(&format, "format", "text", "Output format for the hook")

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the quorum pre-commit hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := hookPath(cmd.Context(), "")
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			removed, err := uninstallHook(path)
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			if !removed {
				fmt.Fprintln(a.stdout, "No quorum pre-commit hook found.")
				return nil
			}
			fmt.Fprintf(a.stdout, "Removed quorum pre-commit hook from %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(install, uninstall)
	return cmd
}

// hookPath locates the pre-commit hook of the repository containing dir.
func hookPath(ctx context.Context, dir string) (string, error) {
	c := exec.CommandContext(ctx, "git", "rev-parse", "--git-path", "hooks/pre-commit")
	c.Dir = dir
	out, err := c.Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository (git rev-parse failed)")
	}
	p := strings.TrimSpace(string(out))
	if !filepath.IsAbs(p) && dir != "" {
		p = filepath.Join(dir, p)
	}
	return p, nil
}

// installHook writes section into the hook at path, replacing an earlier
// quorum section and keeping any other hook content.
func installHook(path, section string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading hook file: %w", err)
	}
	content := "#!/bin/sh\n" + section
	if len(existing) > 0 {
		content = replaceHookSection(string(existing), section)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("writing hook file: %w", err)
	}
	return nil
}

// uninstallHook strips the quorum section from the hook at path and deletes
// the file when nothing else is left. It reports whether a section was found.
func uninstallHook(path string) (bool, error) {
	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading hook file: %w", err)
	}
	if !strings.Contains(string(existing), hookMarkerStart) {
		return false, nil
	}
	content := removeHookSection(string(existing))
	switch strings.TrimSpace(content) {
	case "", "#!/bin/sh", "#!/bin/bash":
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("removing hook file: %w", err)
		}
		return true, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return false, fmt.Errorf("writing hook file: %w", err)
	}
	return true, nil
}

// hookScript blocks the commit on exit 1 (comments in a fail-on category)
// and lets it through, with a warning, on any other failure.
func hookScript(failOn, format string) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	fmt.Fprintf(&b, "quorum review staged --fail-on %s --format %s\n", failOn, format)
	b.WriteString("QUORUM_EXIT=$?\n")
	b.WriteString("if [ $QUORUM_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"quorum: review comments block this commit\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $QUORUM_EXIT -ge 2 ]; then\n")
	b.WriteString("  echo \"quorum: review failed (exit $QUORUM_EXIT), allowing commit\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceHookSection(existing, section string) string {
	start := strings.Index(existing, hookMarkerStart)
	end := strings.Index(existing, hookMarkerEnd)
	if start == -1 || end == -1 || end < start {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}
	after := strings.TrimPrefix(existing[end+len(hookMarkerEnd):], "\n")
	return existing[:start] + section + after
}

func removeHookSection(existing string) string {
	start := strings.Index(existing, hookMarkerStart)
	end := strings.Index(existing, hookMarkerEnd)
	if start == -1 || end == -1 || end < start {
		return existing
	}
	after := strings.TrimPrefix(existing[end+len(hookMarkerEnd):], "\n")
	return existing[:start] + after
}
