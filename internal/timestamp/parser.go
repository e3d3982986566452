// Package timestamp extracts wall-clock timestamps from free-form log text.
// Device logs mix ISO 8601, syslog, slash-dated and bare-time formats, often
// within one directory; the parser tries an ordered list of patterns and
// reports the first hit.
package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of scanning one line for a timestamp. Raw is the
// matched substring as it appeared; Remaining is the line with the matched
// portion removed (the original line when nothing matched).
type Result struct {
	Found     bool
	Timestamp time.Time
	Raw       string
	Remaining string
}

type format struct {
	re      *regexp.Regexp
	layouts []string
	// normalize rewrites the raw match before layout parsing, e.g. turning
	// a decimal comma into a dot. Nil means use the match as-is.
	normalize func(string) string
	// finish adjusts the parsed time, e.g. filling in the missing year of a
	// syslog timestamp. Nil means keep it.
	finish func(time.Time) time.Time
}

// Parser recognizes the timestamp formats commonly found in device logs.
// It is stateless and safe for concurrent use.
type Parser struct {
	formats []format
}

// NewParser returns a Parser with the built-in format table. Order matters:
// longer, more specific patterns are tried before the bare time-of-day form
// so the datetime portion of a line is never half-matched.
func NewParser() *Parser {
	decimalComma := func(s string) string { return strings.Replace(s, ",", ".", 1) }
	slashDate := func(s string) string {
		s = strings.Replace(s, "/", "-", 2)
		return strings.Replace(s, ",", ".", 1)
	}
	currentYear := func(t time.Time) time.Time {
		now := time.Now()
		t = t.AddDate(now.Year(), 0, 0)
		// A December stamp seen in January belongs to the previous year.
		if t.After(now.AddDate(0, 1, 0)) {
			t = t.AddDate(-1, 0, 0)
		}
		return t
	}
	epochDate := func(t time.Time) time.Time {
		return time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	}

	return &Parser{formats: []format{
		{
			re: regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),
			layouts: []string{
				time.RFC3339Nano,
				time.RFC3339,
				"2006-01-02T15:04:05.999999999",
				"2006-01-02T15:04:05",
			},
		},
		{
			re: regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:[.,]\d+)?`),
			layouts: []string{
				"2006-01-02 15:04:05.999999999",
				"2006-01-02 15:04:05",
			},
			normalize: decimalComma,
		},
		{
			re: regexp.MustCompile(`\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}(?:[.,]\d+)?`),
			layouts: []string{
				"2006-01-02 15:04:05.999999999",
				"2006-01-02 15:04:05",
			},
			normalize: slashDate,
		},
		{
			re: regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) {1,2}\d{1,2} \d{2}:\d{2}:\d{2}`),
			layouts: []string{
				"Jan _2 15:04:05",
			},
			finish: currentYear,
		},
		{
			re: regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(?:[.,]\d+)?\b`),
			layouts: []string{
				"15:04:05.999999999",
				"15:04:05",
			},
			normalize: decimalComma,
			finish:    epochDate,
		},
	}}
}

// ParseFromText scans text for the first recognizable timestamp. Bare
// time-of-day stamps keep the epoch date so relative device logs still sort
// among themselves.
func (p *Parser) ParseFromText(text string) Result {
	for _, f := range p.formats {
		loc := f.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		matched := text[loc[0]:loc[1]]
		raw := matched
		if f.normalize != nil {
			raw = f.normalize(raw)
		}
		ts, ok := parseLayouts(raw, f.layouts)
		if !ok {
			continue
		}
		if f.finish != nil {
			ts = f.finish(ts)
		}
		remaining := strings.TrimSpace(strings.TrimSpace(text[:loc[0]]) + " " + strings.TrimSpace(text[loc[1]:]))
		return Result{Found: true, Timestamp: ts, Raw: matched, Remaining: remaining}
	}
	return Result{Remaining: text}
}

// ParseTimestamp converts a timestamp of flexible type (string, numeric unix
// value, or time.Time) into a time.Time. Numeric magnitudes pick the unit:
// values above 1e15 are nanoseconds, above 1e12 microseconds, above 1e9
// milliseconds, anything smaller seconds.
func (p *Parser) ParseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		return p.parseString(v)
	case float64:
		return parseUnixTimestamp(v)
	case int64:
		return parseUnixTimestamp(float64(v))
	case int:
		return parseUnixTimestamp(float64(v))
	}
	return time.Time{}, false
}

func (p *Parser) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return parseUnixTimestamp(n)
	}
	for _, f := range p.formats {
		raw := s
		if f.normalize != nil {
			raw = f.normalize(raw)
		}
		if ts, ok := parseLayouts(raw, f.layouts); ok {
			if f.finish != nil {
				ts = f.finish(ts)
			}
			return ts, true
		}
	}
	// The string may carry trailing context, e.g. a token that was never
	// cleanly separated from the message.
	if r := p.ParseFromText(s); r.Found {
		return r.Timestamp, true
	}
	return time.Time{}, false
}

// ExtractLogMessage returns the human portion of a line: the text left after
// removing a leading timestamp and severity tag. Lines that reduce to nothing
// are returned unchanged.
func (p *Parser) ExtractLogMessage(text string) string {
	msg := text
	if r := p.ParseFromText(text); r.Found {
		msg = r.Remaining
	}
	msg = severityPrefixRegex.ReplaceAllString(strings.TrimSpace(msg), "")
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return text
	}
	return msg
}

var severityPrefixRegex = regexp.MustCompile(`(?i)^(?:TRACE|VERBOSE|DEBUG|INFO|NOTICE|WARN|WARNING|ERROR|FATAL|CRITICAL|PANIC)\b[:\s-]*`)

func parseLayouts(raw string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseUnixTimestamp(v float64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	switch {
	case v > 1e15: // nanoseconds
		return time.Unix(0, int64(v)).UTC(), true
	case v > 1e12: // microseconds
		return time.UnixMicro(int64(v)).UTC(), true
	case v > 1e9: // milliseconds
		return time.UnixMilli(int64(v)).UTC(), true
	default: // seconds, fraction preserved
		sec := int64(v)
		nsec := int64((v - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	}
}
