package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Provider != "anthropic" || cfg.Format != "text" || cfg.FailOn != "none" {
		t.Errorf("top-level defaults = %+v", cfg)
	}
	if cfg.LLM.Timeout != 30*time.Second || cfg.LLM.MaxAttempts != 3 || cfg.LLM.MaxDelay != 20*time.Second {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.Review.SnippetLines != 60 || cfg.Review.DedupPrefix != 200 || cfg.Review.RequestTimeout != 120*time.Second {
		t.Errorf("review defaults = %+v", cfg.Review)
	}
	if len(cfg.Agents) != 4 || cfg.Agents[0] != "logic" {
		t.Errorf("agents = %v", cfg.Agents)
	}
	if !cfg.Privacy.RedactSecrets || !cfg.Cache.Enabled || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("privacy/cache defaults = %+v %+v", cfg.Privacy, cfg.Cache)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if !strings.HasSuffix(cfg.Store.DSN, filepath.Join("quorum", "history.db")) {
		t.Errorf("Store.DSN = %q", cfg.Store.DSN)
	}
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `provider: openai
model: gpt-4o
format: json
llm:
  timeout: 45s
  max_attempts: 5
agents: [logic, security]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUORUM_MODEL", "gpt-4o-mini")
	t.Setenv("QUORUM_LLM_MAX_ATTEMPTS", "2")

	cfg, err := Load(path, map[string]string{"format": "sarif"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want file value", cfg.Provider)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want env value", cfg.Model)
	}
	if cfg.Format != "sarif" {
		t.Errorf("Format = %q, want override", cfg.Format)
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("LLM.Timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.MaxAttempts != 2 {
		t.Errorf("LLM.MaxAttempts = %d, want env value", cfg.LLM.MaxAttempts)
	}
	if len(cfg.Agents) != 2 || cfg.Agents[1] != "security" {
		t.Errorf("Agents = %v", cfg.Agents)
	}
	if cfg.Review.SnippetLines != 60 {
		t.Errorf("untouched key lost its default: %d", cfg.Review.SnippetLines)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "quorum.json")
	if err := os.WriteFile(path, []byte(`{"fail_on":"security,logic","review":{"summary":false}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.FailOnList(); len(got) != 2 || got[0] != "security" {
		t.Errorf("FailOnList = %v", got)
	}
	if cfg.Review.Summary {
		t.Error("review.summary should be false")
	}
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name      string
		path      string
		overrides map[string]string
		want      string
	}{
		{"missing explicit file", filepath.Join(t.TempDir(), "nope.yaml"), nil, "reading config file"},
		{"unknown override", "", map[string]string{"colour": "red"}, "unknown config key"},
		{"bad int", "", map[string]string{"llm.max_attempts": "many"}, "must be an integer"},
		{"bad duration", "", map[string]string{"llm.timeout": "soon"}, "must be a duration"},
		{"bad format", "", map[string]string{"format": "xml"}, "invalid value for format"},
		{"bad fail_on", "", map[string]string{"fail_on": "high"}, "invalid fail_on"},
		{"bad confidence", "", map[string]string{"min_confidence": "1.5"}, "min_confidence"},
		{"zero attempts", "", map[string]string{"llm.max_attempts": "0"}, "max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, tt.overrides)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestSetField(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	if err := SetField(path, "provider", "gemini"); err != nil {
		t.Fatalf("SetField provider: %v", err)
	}
	if err := SetField(path, "llm.max_tokens", "4096"); err != nil {
		t.Fatalf("SetField max_tokens: %v", err)
	}
	if err := SetField(path, "diff.exclude", "vendor/**, testdata/**"); err != nil {
		t.Fatalf("SetField exclude: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Provider != "gemini" || cfg.LLM.MaxTokens != 4096 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Diff.Exclude) != 2 || cfg.Diff.Exclude[1] != "testdata/**" {
		t.Errorf("Exclude = %v", cfg.Diff.Exclude)
	}

	for _, bad := range [][2]string{{"nope", "x"}, {"provider", "acme"}, {"cache.enabled", "maybe"}} {
		if err := SetField(path, bad[0], bad[1]); err == nil {
			t.Errorf("SetField(%q, %q) should fail", bad[0], bad[1])
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Model = "custom-model"
	cfg.Review.RequestTimeout = 90 * time.Second
	cfg.Privacy.RedactPaths = []string{"**/*.key"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got.Model != "custom-model" || got.Review.RequestTimeout != 90*time.Second {
		t.Errorf("got %+v", got)
	}
	if len(got.Privacy.RedactPaths) != 1 || got.Privacy.RedactPaths[0] != "**/*.key" {
		t.Errorf("RedactPaths = %v", got.Privacy.RedactPaths)
	}
}

func TestKeysSorted(t *testing.T) {
	ks := Keys()
	for i := 1; i < len(ks); i++ {
		if ks[i-1] > ks[i] {
			t.Fatalf("keys not sorted at %d: %q > %q", i, ks[i-1], ks[i])
		}
	}
}
