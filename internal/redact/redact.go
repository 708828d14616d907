package redact

import (
	"regexp"

	"github.com/dshills/quorum/internal/glob"
)

// Placeholder replaces every masked secret.
const Placeholder = "[REDACTED]"

type rule struct {
	name string
	re   *regexp.Regexp
}

// rules run in order; provider-specific shapes precede the generic ones so
// the reported rule name is the most specific match.
var rules = []rule{
	{"private-key", regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"aws-access-key-id", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"aws-secret-key", regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`)},
	{"github-token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"slack-token", regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`)},
	{"anthropic-key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"openai-key", regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9]{20,}`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{"bearer", regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`)},
	{"connection-string", regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@`)},
	{"api-key-assignment", regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{20,}["']?`)},
	{"secret-assignment", regexp.MustCompile(`(?i)(?:secret|token|password|passwd|credential)\s*[:=]\s*["'][^"']{8,}["']`)},
	{"hex-secret", regexp.MustCompile(`(?i)(?:key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`)},
}

// Hit counts the matches of one rule.
type Hit struct {
	Rule  string
	Count int
}

// Scan masks every match and reports which rules fired, in rule order.
func Scan(text string) (string, []Hit) {
	var hits []Hit
	for _, r := range rules {
		n := 0
		text = r.re.ReplaceAllStringFunc(text, func(string) string {
			n++
			return Placeholder
		})
		if n > 0 {
			hits = append(hits, Hit{Rule: r.name, Count: n})
		}
	}
	return text, hits
}

// Secrets masks every match in text.
func Secrets(text string) string {
	out, _ := Scan(text)
	return out
}

// MatchPath reports whether p matches any of the glob patterns, so
// "**/.env" matches both ".env" and "config/.env".
func MatchPath(p string, patterns []string) bool {
	return glob.MatchAny(p, patterns)
}
