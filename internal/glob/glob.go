// Package glob matches slash-separated paths against patterns that extend
// path.Match with "**" for any number of directories.
package glob

import (
	"path"
	"strings"
)

// Match reports whether p matches pattern. A pattern without a slash also
// matches the last element of p, so "*.pem" matches "deploy/tls/server.pem".
func Match(pattern, p string) bool {
	if pattern == "" {
		return false
	}
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	segs := strings.Split(p, "/")
	if matchSegments(strings.Split(pattern, "/"), segs) {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, segs[len(segs)-1])
		return ok
	}
	return false
}

// MatchAny reports whether p matches at least one pattern.
func MatchAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if Match(pattern, p) {
			return true
		}
	}
	return false
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pat[0], segs[0]); err != nil || !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
