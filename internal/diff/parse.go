package diff

import (
	"regexp"
	"strconv"
	"strings"
)

const devNull = "/dev/null"

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@ ?(.*)$`)

// fileState tracks header lines seen for the file currently being parsed.
type fileState struct {
	fc       FileChange
	markers  bool
	newFile  bool
	deleted  bool
	renamed  bool
	binary   bool
	gitPaths [2]string
}

type parser struct {
	lines []string
	pos   int
	files []FileChange
	cur   *fileState
}

// Parse splits unified diff text into file changes in input order.
func Parse(text string) ([]FileChange, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, &FormatError{Msg: "empty diff"}
	}

	p := &parser{lines: strings.Split(strings.TrimSuffix(text, "\n"), "\n")}
	if err := p.run(); err != nil {
		return nil, err
	}
	if len(p.files) == 0 {
		return nil, &FormatError{Msg: "no file headers found"}
	}
	return p.files, nil
}

func (p *parser) run() error {
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		switch {
		case strings.HasPrefix(line, "diff --git "):
			p.startFile()
			p.cur.gitPaths = splitGitHeader(strings.TrimPrefix(line, "diff --git "))
			p.pos++

		case strings.HasPrefix(line, "--- ") && p.pos+1 < len(p.lines) && strings.HasPrefix(p.lines[p.pos+1], "+++ "):
			if p.cur == nil || p.cur.markers || len(p.cur.fc.Hunks) > 0 {
				p.startFile()
			}
			p.cur.markers = true
			p.cur.fc.OldPath = markerPath(line[4:])
			p.cur.fc.NewPath = markerPath(p.lines[p.pos+1][4:])
			p.pos += 2

		case strings.HasPrefix(line, "@@"):
			if p.cur == nil {
				return &FormatError{Line: p.pos + 1, Msg: "hunk before any file header"}
			}
			h, err := p.parseHunk()
			if err != nil {
				return err
			}
			p.cur.fc.Hunks = append(p.cur.fc.Hunks, h)

		default:
			if p.cur != nil {
				p.applyExtendedHeader(line)
			}
			p.pos++
		}
	}
	p.finishFile()
	return nil
}

func (p *parser) startFile() {
	p.finishFile()
	p.cur = &fileState{fc: FileChange{Hunks: []Hunk{}}}
}

func (p *parser) applyExtendedHeader(line string) {
	s := p.cur
	switch {
	case strings.HasPrefix(line, "new file mode"):
		s.newFile = true
	case strings.HasPrefix(line, "deleted file mode"):
		s.deleted = true
	case strings.HasPrefix(line, "rename from "):
		s.renamed = true
		s.fc.OldPath = unquote(strings.TrimPrefix(line, "rename from "))
	case strings.HasPrefix(line, "rename to "):
		s.renamed = true
		s.fc.NewPath = unquote(strings.TrimPrefix(line, "rename to "))
	case strings.HasPrefix(line, "Binary files ") || line == "GIT binary patch":
		s.binary = true
	}
}

func (p *parser) finishFile() {
	if p.cur == nil {
		return
	}
	s := p.cur
	p.cur = nil

	fc := s.fc
	if fc.OldPath == "" && fc.NewPath == "" && !s.markers {
		fc.OldPath, fc.NewPath = s.gitPaths[0], s.gitPaths[1]
		if s.newFile {
			fc.OldPath = ""
		}
		if s.deleted {
			fc.NewPath = ""
		}
	}

	switch {
	case s.binary:
		fc.Status = StatusBinary
	case s.newFile || (s.markers && fc.OldPath == ""):
		fc.Status = StatusAdded
	case s.deleted || (s.markers && fc.NewPath == ""):
		fc.Status = StatusDeleted
	case s.renamed || (fc.OldPath != "" && fc.NewPath != "" && fc.OldPath != fc.NewPath):
		fc.Status = StatusRenamed
	default:
		fc.Status = StatusModified
	}

	fc.Path = fc.NewPath
	if fc.Path == "" {
		fc.Path = fc.OldPath
	}
	if fc.Path == "" {
		return
	}

	for i := range fc.Hunks {
		if fc.Status == StatusAdded {
			fc.Hunks[i].Old = nil
		}
		if fc.Status == StatusDeleted {
			fc.Hunks[i].New = nil
		}
	}
	p.files = append(p.files, fc)
}

// parseHunk consumes an @@ header and exactly the body lines it declares.
func (p *parser) parseHunk() (Hunk, error) {
	headerLine := p.pos + 1
	header := p.lines[p.pos]
	m := hunkHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return Hunk{}, &FormatError{Line: headerLine, Msg: "malformed hunk header " + strconv.Quote(header)}
	}
	oldRange, err := parseRange(m[1], m[2])
	if err != nil {
		return Hunk{}, &FormatError{Line: headerLine, Msg: "malformed old range: " + err.Error()}
	}
	newRange, err := parseRange(m[3], m[4])
	if err != nil {
		return Hunk{}, &FormatError{Line: headerLine, Msg: "malformed new range: " + err.Error()}
	}

	h := Hunk{
		Old:     &oldRange,
		New:     &newRange,
		Header:  strings.TrimSpace(strings.TrimSuffix(header, m[5])),
		Section: strings.TrimSpace(m[5]),
		Lines:   make([]Line, 0, max(oldRange.Count, newRange.Count)),
	}
	p.pos++

	oldLeft, newLeft := oldRange.Count, newRange.Count
	oldN, newN := oldRange.Start, newRange.Start
	for oldLeft > 0 || newLeft > 0 {
		if p.pos >= len(p.lines) {
			return Hunk{}, &FormatError{
				Line: headerLine,
				Msg:  "hunk " + strconv.Quote(h.Header) + " ends before its declared line counts",
			}
		}
		line := p.lines[p.pos]
		lineNo := p.pos + 1
		p.pos++

		tag, text := byte(' '), ""
		if line != "" {
			tag, text = line[0], line[1:]
		}
		switch tag {
		case ' ':
			if oldLeft == 0 || newLeft == 0 {
				return Hunk{}, &FormatError{Line: lineNo, Msg: "context line exceeds hunk range"}
			}
			h.Lines = append(h.Lines, Line{Kind: Context, Text: text, OldLine: oldN, NewLine: newN})
			oldN++
			newN++
			oldLeft--
			newLeft--
		case '+':
			if newLeft == 0 {
				return Hunk{}, &FormatError{Line: lineNo, Msg: "added line exceeds hunk range"}
			}
			h.Lines = append(h.Lines, Line{Kind: Added, Text: text, NewLine: newN})
			newN++
			newLeft--
		case '-':
			if oldLeft == 0 {
				return Hunk{}, &FormatError{Line: lineNo, Msg: "removed line exceeds hunk range"}
			}
			h.Lines = append(h.Lines, Line{Kind: Removed, Text: text, OldLine: oldN})
			oldN++
			oldLeft--
		case '\\':
			// "\ No newline at end of file"
		default:
			return Hunk{}, &FormatError{Line: lineNo, Msg: "unexpected line inside hunk " + strconv.Quote(line)}
		}
	}

	for p.pos < len(p.lines) && strings.HasPrefix(p.lines[p.pos], `\`) {
		p.pos++
	}
	return h, nil
}

func parseRange(start, count string) (Range, error) {
	s, err := strconv.Atoi(start)
	if err != nil {
		return Range{}, err
	}
	c := 1
	if count != "" {
		if c, err = strconv.Atoi(count); err != nil {
			return Range{}, err
		}
	}
	return Range{Start: s, Count: c}, nil
}

// markerPath extracts the path from a ---/+++ line, dropping the a/ or b/
// prefix and any trailing timestamp. /dev/null yields "".
func markerPath(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = unquote(strings.TrimSpace(s))
	if s == devNull {
		return ""
	}
	return stripPrefix(s)
}

// splitGitHeader splits "a/x b/y" from a diff --git line.
func splitGitHeader(s string) [2]string {
	if strings.HasPrefix(s, `"`) {
		parts := quotedFields(s)
		if len(parts) == 2 {
			return [2]string{stripPrefix(parts[0]), stripPrefix(parts[1])}
		}
	}
	if i := strings.LastIndex(s, " b/"); i >= 0 {
		return [2]string{stripPrefix(s[:i]), stripPrefix(s[i+1:])}
	}
	if f := strings.Fields(s); len(f) == 2 {
		return [2]string{stripPrefix(f[0]), stripPrefix(f[1])}
	}
	return [2]string{}
}

func quotedFields(s string) []string {
	var out []string
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		if s[0] == '"' {
			prefix, err := strconv.QuotedPrefix(s)
			if err != nil {
				return nil
			}
			out = append(out, unquote(prefix))
			s = s[len(prefix):]
			continue
		}
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i])
		s = s[i:]
	}
	return out
}

func stripPrefix(s string) string {
	if strings.HasPrefix(s, "a/") || strings.HasPrefix(s, "b/") {
		return s[2:]
	}
	return s
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
