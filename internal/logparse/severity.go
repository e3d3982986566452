package logparse

import (
	"regexp"
	"strings"
)

// SeverityRegex matches common severity keywords in log text.
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|VERBOSE|DEBUG|INFO|NOTICE|WARN|WARNING|ERROR|FATAL|CRITICAL|PANIC)\b`)

// markerRegex matches compact device-log severity markers near the start of
// a line: a bracketed letter tag like "[E]" or a logcat-style "E/" prefix.
var markerRegex = regexp.MustCompile(`^\s*(?:\[([VDIWEF])\]|([VDIWEF])/)`)

// NormalizeSeverity folds the many severity spellings seen in device logs
// into the four canonical levels DEBUG, INFO, WARN and ERROR.
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "TRACE", "TRAC", "TRC", "VERBOSE", "VRB":
		return "DEBUG"
	case "DEBUG", "DEBU", "DBG", "DEB":
		return "DEBUG"
	case "INFO", "INFORMATION", "INF", "NOTICE":
		return "INFO"
	case "WARN", "WARNING", "WRNG", "WRN":
		return "WARN"
	case "ERROR", "ERR", "ERRO":
		return "ERROR"
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC":
		return "ERROR"
	default:
		if len(normalized) >= 4 {
			switch normalized[:4] {
			case "INFO", "NOTI":
				return "INFO"
			case "WARN":
				return "WARN"
			case "ERRO", "FATA", "CRIT", "PANI":
				return "ERROR"
			case "DEBU", "TRAC", "VERB":
				return "DEBUG"
			}
		}
		return "INFO"
	}
}

// GuessSeverity derives a severity level from raw log text. Whole-word
// keywords win; compact markers are consulted next; everything else is INFO.
func GuessSeverity(text string) string {
	if m := SeverityRegex.FindStringSubmatch(text); len(m) > 1 {
		return NormalizeSeverity(m[1])
	}
	if m := markerRegex.FindStringSubmatch(text); m != nil {
		letter := m[1]
		if letter == "" {
			letter = m[2]
		}
		switch letter {
		case "V", "D":
			return "DEBUG"
		case "W":
			return "WARN"
		case "E", "F":
			return "ERROR"
		}
	}
	return "INFO"
}
