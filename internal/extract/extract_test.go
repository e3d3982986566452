package extract

import (
	"testing"
	"time"

	"github.com/braidlog/braid/internal/ruleset"
)

func testRule(t *testing.T) *ruleset.Rule {
	t.Helper()
	rs := ruleset.Compile(ruleset.Config{
		Parser: []ruleset.RuleConfig{{
			Files: []string{"kernel.log"},
			Regex: ruleset.FieldPatterns{
				Time:    `^(\[[^\]]+\])`,
				Process: `\]\s+([\w-]+):`,
				PID:     `pid=(\d+)`,
				Message: `^\[[^\]]+\]\s+(.+)$`,
			},
		}},
	})
	rule, ok := rs.RuleFor("kernel.log")
	if !ok {
		t.Fatal("test rule did not compile")
	}
	return rule
}

func TestLine_Rule(t *testing.T) {
	e := WithRule(testRule(t))

	got := e.Line("[2024-01-15 10:30:45.123] usb: device connected pid=482")
	if !got.TimeOK {
		t.Fatal("TimeOK = false, want timestamp extracted")
	}
	want := time.Date(2024, 1, 15, 10, 30, 45, 123000000, time.UTC).UnixMilli()
	if got.EpochMS != want {
		t.Errorf("EpochMS = %d, want %d", got.EpochMS, want)
	}
	if got.Parsed.Time != "2024-01-15 10:30:45.123" {
		t.Errorf("Parsed.Time = %q, want de-bracketed token", got.Parsed.Time)
	}
	if got.Parsed.Process != "usb" || got.Parsed.PID != "482" {
		t.Errorf("Parsed = %+v", got.Parsed)
	}
	if got.Parsed.Message != "usb: device connected pid=482" {
		t.Errorf("Parsed.Message = %q", got.Parsed.Message)
	}
}

func TestLine_RuleTimeMissing(t *testing.T) {
	e := WithRule(testRule(t))

	// The message extracts but the bracketed token is not a timestamp:
	// TimeOK stays false so the caller inherits the previous stamp.
	got := e.Line("[boot] usb: enumeration started")
	if got.TimeOK {
		t.Error("TimeOK = true for an unparseable time token")
	}
	if got.EpochMS != 0 {
		t.Errorf("EpochMS = %d, want 0", got.EpochMS)
	}
	if got.Parsed.Message != "usb: enumeration started" {
		t.Errorf("Parsed.Message = %q", got.Parsed.Message)
	}
}

func TestLine_RuleFallsBackWithoutMessage(t *testing.T) {
	e := WithRule(testRule(t))

	// No bracket prefix, so the rule extracts no message; the heuristic
	// still produces a usable entry.
	got := e.Line("2024-01-15T10:30:45Z WARN thermal zone2 87C")
	if !got.TimeOK {
		t.Error("heuristic fallback should find the timestamp")
	}
	if got.Level != "WARN" {
		t.Errorf("Level = %q, want WARN", got.Level)
	}
	if got.Parsed.Time != "2024-01-15T10:30:45Z" {
		t.Errorf("Parsed.Time = %q", got.Parsed.Time)
	}
}

func TestLine_Heuristic(t *testing.T) {
	e := Heuristic()

	got := e.Line("2024-01-15 10:30:45.500 ERROR: sensor timeout")
	if !got.TimeOK {
		t.Fatal("TimeOK = false")
	}
	want := time.Date(2024, 1, 15, 10, 30, 45, 500000000, time.UTC).UnixMilli()
	if got.EpochMS != want {
		t.Errorf("EpochMS = %d, want %d", got.EpochMS, want)
	}
	if got.Level != "ERROR" {
		t.Errorf("Level = %q, want ERROR", got.Level)
	}
	if got.Parsed.Message != "sensor timeout" {
		t.Errorf("Parsed.Message = %q", got.Parsed.Message)
	}
}

func TestLine_HeuristicNoTimestamp(t *testing.T) {
	e := Heuristic()

	got := e.Line("watchdog fed")
	if got.TimeOK {
		t.Error("TimeOK = true for a line without timestamp")
	}
	if got.Level != "INFO" {
		t.Errorf("Level = %q, want INFO default", got.Level)
	}
	if got.Text != "watchdog fed" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestLine_ScrubsBeforeExtraction(t *testing.T) {
	e := Heuristic()

	got := e.Line("\uFEFF\x1b[31m2024-01-15 10:30:45 ERROR\x1b[0m boom")
	if !got.TimeOK {
		t.Error("BOM/ANSI should not hide the timestamp")
	}
	if got.Level != "ERROR" {
		t.Errorf("Level = %q, want ERROR", got.Level)
	}
	if got.Text != "2024-01-15 10:30:45 ERROR boom" {
		t.Errorf("Text = %q, want scrubbed line", got.Text)
	}
}

func TestScrubLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"leading BOM", "\uFEFFhello", "hello"},
		{"intra-line BOM", "hel\uFEFFlo", "hello"},
		{"color escape", "\x1b[31mred\x1b[0m", "red"},
		{"cursor escape", "\x1b[2Kcleared", "cleared"},
		{"clean line", "nothing to do", "nothing to do"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScrubLine(tt.input); got != tt.want {
				t.Errorf("ScrubLine(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDeBracket(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"[2024-01-15 10:30:45]", "2024-01-15 10:30:45"},
		{"  [ 10:30:45 ]  ", "10:30:45"},
		{"10:30:45", "10:30:45"},
		{"[]", ""},
		{"", ""},
		{"[only-open", "[only-open"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DeBracket(tt.input); got != tt.want {
				t.Errorf("DeBracket(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
