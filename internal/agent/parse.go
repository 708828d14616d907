package agent

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/quorum/internal/review"
)

// Confidence defaults and the ceiling applied to salvaged findings.
const (
	DefaultConfidence   = 0.7
	HeuristicCeiling    = 0.5
	heuristicDefault    = 0.5
	linePatternDefault  = 0.4
	maxFragmentsScanned = 32
)

// ParseKind tags how a model response was interpreted.
type ParseKind int

const (
	Unparseable ParseKind = iota
	Structured
	Heuristic
)

func (k ParseKind) String() string {
	switch k {
	case Structured:
		return "structured"
	case Heuristic:
		return "heuristic"
	default:
		return "unparseable"
	}
}

// Finding is a model finding before line mapping. Line is snippet-relative.
type Finding struct {
	Line       int
	Side       review.Side
	Category   review.Category
	Confidence float64
	Body       string
}

// ParseResult is the interpretation of one model response. Raw is kept for
// logging when nothing could be recovered.
type ParseResult struct {
	Kind     ParseKind
	Findings []Finding
	Raw      string
}

var (
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```$")
	// "line 12: msg", "Line 12, msg", "L12 - msg", "12: msg", optionally bulleted.
	linePatternRe = regexp.MustCompile(`(?i)^\s*(?:[-*•]\s+)?(?:line\s+|l)?(\d+)\s*(?::|,|-|–)\s*(.+?)\s*$`)
)

// Parse interprets a model response for a role whose category is fallback.
// A response that is wholly JSON in a recognised shape is Structured. Failing
// that, JSON fragments embedded in prose and then line-oriented patterns are
// tried; anything found that way is Heuristic and capped at
// HeuristicCeiling confidence.
func Parse(raw string, fallback review.Category) ParseResult {
	text := stripFences(strings.TrimSpace(raw))

	if gjson.Valid(text) {
		if findings, ok := findingsFrom(gjson.Parse(text), fallback, DefaultConfidence); ok {
			return ParseResult{Kind: Structured, Findings: findings, Raw: raw}
		}
	}

	if findings := fromFragments(text, fallback); len(findings) > 0 {
		return ParseResult{Kind: Heuristic, Findings: capConfidence(findings), Raw: raw}
	}
	if findings := fromLinePatterns(text, fallback); len(findings) > 0 {
		return ParseResult{Kind: Heuristic, Findings: capConfidence(findings), Raw: raw}
	}
	return ParseResult{Kind: Unparseable, Raw: raw}
}

func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// findingsFrom reads findings from a parsed JSON value: an object with a
// findings (or issues/comments) array, a bare array, or one finding object.
// ok is false when the value has none of those shapes.
func findingsFrom(v gjson.Result, fallback review.Category, defConf float64) ([]Finding, bool) {
	switch {
	case v.IsArray():
		return findingsFromArray(v, fallback, defConf), true
	case v.IsObject():
		for _, key := range []string{"findings", "issues", "comments"} {
			if arr := v.Get(key); arr.IsArray() {
				return findingsFromArray(arr, fallback, defConf), true
			}
		}
		if f, ok := findingFrom(v, fallback, defConf); ok {
			return []Finding{f}, true
		}
	}
	return nil, false
}

func findingsFromArray(arr gjson.Result, fallback review.Category, defConf float64) []Finding {
	findings := []Finding{}
	arr.ForEach(func(_, item gjson.Result) bool {
		if f, ok := findingFrom(item, fallback, defConf); ok {
			findings = append(findings, f)
		}
		return true
	})
	return findings
}

func findingFrom(item gjson.Result, fallback review.Category, defConf float64) (Finding, bool) {
	if !item.IsObject() {
		return Finding{}, false
	}
	var body string
	for _, key := range []string{"body", "message", "comment", "description"} {
		if s := strings.TrimSpace(item.Get(key).String()); s != "" {
			body = s
			break
		}
	}
	if body == "" {
		return Finding{}, false
	}

	f := Finding{
		Line:       lineOf(item),
		Side:       review.SideNew,
		Category:   fallback,
		Confidence: defConf,
		Body:       body,
	}
	if c, ok := review.ParseCategory(strings.ToLower(strings.TrimSpace(item.Get("category").String()))); ok {
		f.Category = c
	}
	switch strings.ToLower(item.Get("side").String()) {
	case "old", "left":
		f.Side = review.SideOld
	}
	if x, ok := confidenceOf(item.Get("confidence")); ok {
		f.Confidence = clamp(x)
	}
	return f, true
}

// confidenceOf reads a numeric or string confidence. Non-finite values are
// rejected so the caller keeps its default.
func confidenceOf(v gjson.Result) (float64, bool) {
	var x float64
	switch v.Type {
	case gjson.Number:
		x = v.Float()
	case gjson.String:
		var err error
		if x, err = strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

func lineOf(item gjson.Result) int {
	for _, key := range []string{"line", "start_line", "startLine"} {
		v := item.Get(key)
		switch v.Type {
		case gjson.Number:
			return int(v.Int())
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.ToLower(v.Str), "line"))); err == nil {
				return n
			}
		}
	}
	return 0
}

// fromFragments scans text for balanced JSON arrays or objects and collects
// the findings in every valid one.
func fromFragments(text string, fallback review.Category) []Finding {
	var findings []Finding
	scanned := 0
	for i := 0; i < len(text) && scanned < maxFragmentsScanned; i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchingBracket(text, i)
		if end < 0 {
			continue
		}
		scanned++
		frag := text[i : end+1]
		if !gjson.Valid(frag) {
			continue
		}
		if fs, ok := findingsFrom(gjson.Parse(frag), fallback, heuristicDefault); ok && len(fs) > 0 {
			findings = append(findings, fs...)
			i = end
		}
	}
	return findings
}

// matchingBracket returns the index of the bracket closing the one at start,
// skipping brackets inside JSON strings, or -1.
func matchingBracket(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

func fromLinePatterns(text string, fallback review.Category) []Finding {
	var findings []Finding
	for _, line := range strings.Split(text, "\n") {
		m := linePatternRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		findings = append(findings, Finding{
			Line:       n,
			Side:       review.SideNew,
			Category:   fallback,
			Confidence: linePatternDefault,
			Body:       m[2],
		})
	}
	return findings
}

func capConfidence(findings []Finding) []Finding {
	for i := range findings {
		findings[i].Confidence = min(findings[i].Confidence, HeuristicCeiling)
	}
	return findings
}

func clamp(x float64) float64 {
	return max(0, min(1, x))
}
