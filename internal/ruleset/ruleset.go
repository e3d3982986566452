// Package ruleset compiles the user-editable parsing configuration into an
// immutable set of per-file extraction rules, and decides per file whether
// the compiled parser should be used at all.
package ruleset

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/braidlog/braid/internal/model"
)

// Config mirrors the parsing configuration file.
type Config struct {
	Version      int          `json:"version"`
	Requirements Requirements `json:"requirements"`
	Preflight    Preflight    `json:"preflight"`
	Parser       []RuleConfig `json:"parser"`
}

// Requirements says which extracted fields must be non-empty for a line to
// count as matched by a rule.
type Requirements struct {
	Time    bool `json:"time"`
	Process bool `json:"process"`
	PID     bool `json:"pid"`
	Message bool `json:"message"`
}

// Preflight holds the sampling thresholds for the per-file applicability
// decision.
type Preflight struct {
	SampleLines              int      `json:"sample_lines"`
	MinMatchRatio            float64  `json:"min_match_ratio"`
	HardSkipIfAnyLineMatches []string `json:"hard_skip_if_any_line_matches"`
}

// RuleConfig is one rule as written in the configuration file.
type RuleConfig struct {
	Files []string      `json:"files"`
	Regex FieldPatterns `json:"regex"`
}

// FieldPatterns holds the per-field extraction patterns of one rule. Empty
// string means the field is not extracted by this rule.
type FieldPatterns struct {
	Time    string `json:"time,omitempty"`
	Process string `json:"process,omitempty"`
	PID     string `json:"pid,omitempty"`
	Message string `json:"message,omitempty"`
}

// Rule is one compiled rule: file-name matchers plus up to four independent
// field patterns.
type Rule struct {
	fileRes []*regexp.Regexp
	time    *regexp.Regexp
	process *regexp.Regexp
	pid     *regexp.Regexp
	message *regexp.Regexp
}

// Ruleset is the compiled, immutable form of a Config. A nil *Ruleset means
// "no compiled parser" and callers fall back to built-in heuristics.
type Ruleset struct {
	Requirements  Requirements
	SampleLines   int
	MinMatchRatio float64

	hardSkip []*regexp.Regexp
	rules    []*Rule
}

// Load reads, parses and compiles a configuration file. A malformed file is
// an error; callers typically log it and continue without a compiled parser.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ruleset: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ruleset: parse config: %w", err)
	}
	return Compile(cfg), nil
}

// Compile turns a Config into a Ruleset. Rules with no usable file token are
// skipped with a warning; a config that yields zero usable rules compiles to
// nil. Compile never fails.
func Compile(cfg Config) *Ruleset {
	rs := &Ruleset{
		Requirements:  cfg.Requirements,
		SampleLines:   cfg.Preflight.SampleLines,
		MinMatchRatio: cfg.Preflight.MinMatchRatio,
	}
	if rs.SampleLines <= 0 {
		rs.SampleLines = model.DefaultPreflightSampleLines
	}
	if rs.MinMatchRatio <= 0 {
		rs.MinMatchRatio = model.DefaultPreflightMinRatio
	}

	for _, pat := range cfg.Preflight.HardSkipIfAnyLineMatches {
		re, err := regexp.Compile(pat)
		if err != nil {
			log.Printf("ruleset: invalid hard-skip pattern %q: %v", pat, err)
			continue
		}
		rs.hardSkip = append(rs.hardSkip, re)
	}

	for i, rc := range cfg.Parser {
		rule := compileRule(rc)
		if rule == nil {
			log.Printf("ruleset: skipping rule %d: no usable file pattern", i)
			continue
		}
		rs.rules = append(rs.rules, rule)
	}
	if len(rs.rules) == 0 {
		return nil
	}
	return rs
}

func compileRule(rc RuleConfig) *Rule {
	rule := &Rule{}
	for _, tok := range rc.Files {
		re, ok := compileFileToken(tok)
		if !ok {
			continue
		}
		rule.fileRes = append(rule.fileRes, re)
	}
	if len(rule.fileRes) == 0 {
		return nil
	}
	rule.time = compileField("time", rc.Regex.Time)
	rule.process = compileField("process", rc.Regex.Process)
	rule.pid = compileField("pid", rc.Regex.PID)
	rule.message = compileField("message", rc.Regex.Message)
	return rule
}

// compileFileToken treats tok as a literal base name unless it starts with
// "^", in which case it is a regular expression anchored at the start.
func compileFileToken(tok string) (*regexp.Regexp, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, false
	}
	if strings.HasPrefix(tok, "^") {
		re, err := regexp.Compile(tok)
		if err != nil {
			log.Printf("ruleset: invalid file pattern %q: %v", tok, err)
			return nil, false
		}
		return re, true
	}
	return regexp.MustCompile("^" + regexp.QuoteMeta(tok) + "$"), true
}

func compileField(name, pat string) *regexp.Regexp {
	if pat == "" {
		return nil
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		log.Printf("ruleset: invalid %s pattern %q: %v", name, pat, err)
		return nil
	}
	return re
}

// RuleFor returns the first rule whose file pattern matches the given base
// name. Order is significant: earlier rules win.
func (rs *Ruleset) RuleFor(base string) (*Rule, bool) {
	if rs == nil {
		return nil, false
	}
	for _, r := range rs.rules {
		if r.matchesFile(base) {
			return r, true
		}
	}
	return nil, false
}

func (r *Rule) matchesFile(base string) bool {
	for _, re := range r.fileRes {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}

// Fields runs each field pattern independently over line and returns the raw
// tokens. The first capture group is preferred, the whole match otherwise; a
// field whose pattern is absent or does not match stays empty.
func (r *Rule) Fields(line string) model.ParsedLine {
	return model.ParsedLine{
		Time:    matchToken(r.time, line),
		Process: matchToken(r.process, line),
		PID:     matchToken(r.pid, line),
		Message: matchToken(r.message, line),
	}
}

func matchToken(re *regexp.Regexp, line string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// meetsRequirements reports whether the extracted tokens satisfy the global
// requirements record.
func (rs *Ruleset) meetsRequirements(p model.ParsedLine) bool {
	req := rs.Requirements
	if req.Time && p.Time == "" {
		return false
	}
	if req.Process && p.Process == "" {
		return false
	}
	if req.PID && p.PID == "" {
		return false
	}
	if req.Message && p.Message == "" {
		return false
	}
	return true
}
