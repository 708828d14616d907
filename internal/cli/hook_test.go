package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHookScript(t *testing.T) {
	script := hookScript("security,logic", "json")
	for _, want := range []string{
		hookMarkerStart,
		hookMarkerEnd,
		"quorum review staged --fail-on security,logic --format json",
		"QUORUM_EXIT=$?",
		"exit 1",
		"allowing commit",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q", want)
		}
	}
}

func TestReplaceHookSection(t *testing.T) {
	old := hookScript("any", "text")
	existing := "#!/bin/sh\nbefore\n" + old + "after\n"
	got := replaceHookSection(existing, hookScript("security", "json"))
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Error("surrounding hook content should be kept")
	}
	if strings.Contains(got, "--fail-on any") || !strings.Contains(got, "--fail-on security") {
		t.Error("old section should be replaced")
	}
	if strings.Count(got, hookMarkerStart) != 1 {
		t.Error("exactly one quorum section expected")
	}

	appended := replaceHookSection("#!/bin/sh\nother-hook", old)
	if !strings.HasPrefix(appended, "#!/bin/sh\nother-hook\n") || !strings.Contains(appended, hookMarkerStart) {
		t.Errorf("append = %q", appended)
	}
}

func TestRemoveHookSection(t *testing.T) {
	existing := "#!/bin/sh\nbefore\n" + hookScript("any", "text") + "after\n"
	got := removeHookSection(existing)
	if strings.Contains(got, hookMarkerStart) || got != "#!/bin/sh\nbefore\nafter\n" {
		t.Errorf("removeHookSection = %q", got)
	}
	if plain := "#!/bin/sh\nx\n"; removeHookSection(plain) != plain {
		t.Error("content without a quorum section should be unchanged")
	}
}

func TestInstallAndUninstallHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks", "pre-commit")

	if err := installHook(path, hookScript("any", "text")); err != nil {
		t.Fatalf("install: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Error("hook should be executable")
	}
	// Reinstalling replaces rather than duplicates.
	if err := installHook(path, hookScript("logic", "text")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Count(string(data), hookMarkerStart) != 1 || !strings.HasPrefix(string(data), "#!/bin/sh\n") {
		t.Errorf("hook after reinstall = %q", data)
	}

	removed, err := uninstallHook(path)
	if err != nil || !removed {
		t.Fatalf("uninstall = %v, %v", removed, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("hook file with nothing else in it should be deleted")
	}

	removed, err = uninstallHook(path)
	if err != nil || removed {
		t.Errorf("second uninstall = %v, %v", removed, err)
	}
}

func TestUninstallHook_KeepsOtherContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pre-commit")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nmake lint\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := installHook(path, hookScript("any", "text")); err != nil {
		t.Fatal(err)
	}
	if _, err := uninstallHook(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("hook with other content should survive: %v", err)
	}
	if string(data) != "#!/bin/sh\nmake lint\n" {
		t.Errorf("hook = %q", data)
	}
}
