// Package extract turns raw log lines into parsed fields. The strategy for a
// file is resolved once, at session start: files accepted by the compiled
// parser use their rule's field patterns, everything else goes through the
// timestamp-sniffing heuristic. Either way every line yields a usable entry.
package extract

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/braidlog/braid/internal/logparse"
	"github.com/braidlog/braid/internal/model"
	"github.com/braidlog/braid/internal/ruleset"
	"github.com/braidlog/braid/internal/timestamp"
)

// Line is the outcome of extracting one raw line. TimeOK reports whether a
// timestamp was actually found; when false, EpochMS is zero and the caller
// inherits the file's previous timestamp.
type Line struct {
	Parsed  model.ParsedLine
	EpochMS int64
	Level   string
	Text    string
	TimeOK  bool
}

// Extractor is the per-file extraction strategy. A nil rule means heuristic.
type Extractor struct {
	rule   *ruleset.Rule
	parser *timestamp.Parser
}

var sharedParser = timestamp.NewParser()

// WithRule returns an extractor driven by a compiled rule.
func WithRule(rule *ruleset.Rule) *Extractor {
	return &Extractor{rule: rule, parser: sharedParser}
}

// Heuristic returns the fallback extractor used for files without a usable
// rule.
func Heuristic() *Extractor {
	return &Extractor{parser: sharedParser}
}

// ForFile resolves the strategy for one file, running the preflight gate.
// Callers that already ran the gate use WithRule or Heuristic directly.
func ForFile(rs *ruleset.Ruleset, path string) *Extractor {
	if rs.ShouldUseParserForFile(path) {
		if rule, ok := rs.RuleFor(filepath.Base(path)); ok {
			return WithRule(rule)
		}
	}
	return Heuristic()
}

// Line extracts one raw line. The line is scrubbed first so patterns never
// see BOMs or terminal escapes.
func (e *Extractor) Line(raw string) Line {
	text := ScrubLine(raw)

	if e.rule != nil {
		parsed := e.rule.Fields(text)
		if parsed.Message != "" {
			parsed.Time = DeBracket(parsed.Time)
			parsed.Message = strings.TrimSpace(parsed.Message)
			out := Line{
				Parsed: parsed,
				Level:  logparse.GuessSeverity(text),
				Text:   text,
			}
			if parsed.Time != "" {
				if ts, ok := e.parser.ParseTimestamp(parsed.Time); ok {
					out.EpochMS = ts.UnixMilli()
					out.TimeOK = true
				}
			}
			return out
		}
	}

	return e.heuristicLine(text)
}

func (e *Extractor) heuristicLine(text string) Line {
	out := Line{
		Level: logparse.GuessSeverity(text),
		Text:  text,
	}
	r := e.parser.ParseFromText(text)
	if r.Found {
		out.EpochMS = r.Timestamp.UnixMilli()
		out.TimeOK = true
		out.Parsed.Time = r.Raw
	}
	out.Parsed.Message = e.parser.ExtractLogMessage(text)
	return out
}

var (
	ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	bomRune   = "\uFEFF"
)

// ScrubLine removes a leading UTF-8 byte-order mark, stray intra-line BOMs
// and ANSI escape sequences. Cheap enough to reapply per line.
func ScrubLine(s string) string {
	if strings.Contains(s, bomRune) {
		s = strings.ReplaceAll(s, bomRune, "")
	}
	if strings.Contains(s, "\x1b") {
		s = ansiRegex.ReplaceAllString(s, "")
	}
	return s
}

// DeBracket strips one enclosing [...] wrapper from a time token and trims
// surrounding whitespace.
func DeBracket(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
