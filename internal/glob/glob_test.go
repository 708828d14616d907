package glob

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"**/*", "main.go", true},
		{"**/*", "a/b/c.go", true},
		{"vendor/**", "vendor/lib/x.go", true},
		{"vendor/**", "src/vendor.go", false},
		{"**/*.gen.go", "api/types.gen.go", true},
		{"**/*.gen.go", "types.gen.go", true},
		{"**/dist/**", "web/dist/app.js", true},
		{"**/dist/**", "distro/app.js", false},
		{"*.go", "cmd/quorum/main.go", true},
		{"cmd/*.go", "cmd/quorum/main.go", false},
		{"**/.env", "./.env", true},
		{"[", "x", false},
		{"", "x", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.path); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	if MatchAny("main.go", nil) {
		t.Error("nil patterns should not match")
	}
	if !MatchAny("x/.env", []string{"*.md", "**/.env"}) {
		t.Error("second pattern should match")
	}
}
