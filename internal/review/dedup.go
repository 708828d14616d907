package review

import (
	"strconv"
	"strings"
)

// DefaultDedupPrefix is the number of body runes that participate in the
// dedup key.
const DefaultDedupPrefix = 200

// Deduplicate drops comments whose (path, line, normalized body prefix) key
// has already been seen. The first occurrence wins and input order is kept.
// Bodies are normalized by trimming and lowercasing, then cut to prefix runes.
func Deduplicate(comments []Comment, prefix int) []Comment {
	if prefix <= 0 {
		prefix = DefaultDedupPrefix
	}
	seen := make(map[string]bool, len(comments))
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		k := dedupKey(c, prefix)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func dedupKey(c Comment, prefix int) string {
	body := []rune(strings.ToLower(strings.TrimSpace(c.Body)))
	if len(body) > prefix {
		body = body[:prefix]
	}
	return c.Path + "\x00" + strconv.Itoa(c.Line) + "\x00" + string(body)
}
