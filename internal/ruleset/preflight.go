package ruleset

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ShouldUseParserForFile decides whether the compiled parser applies to one
// input file. The file's base name must match a rule; then up to SampleLines
// complete lines are read from the start of the file. Any hard-skip hit
// rejects the file outright; otherwise the fraction of sampled lines whose
// required fields all extract must reach MinMatchRatio.
func (rs *Ruleset) ShouldUseParserForFile(path string) bool {
	if rs == nil {
		return false
	}
	rule, ok := rs.RuleFor(filepath.Base(path))
	if !ok {
		return false
	}

	sample, err := readSample(path, rs.SampleLines)
	if err != nil {
		log.Printf("ruleset: preflight read %s: %v", path, err)
		return false
	}
	if len(sample) == 0 {
		return false
	}

	matched := 0
	for _, line := range sample {
		for _, skip := range rs.hardSkip {
			if skip.MatchString(line) {
				return false
			}
		}
		if rs.meetsRequirements(rule.Fields(line)) {
			matched++
		}
	}
	return float64(matched)/float64(len(sample)) >= rs.MinMatchRatio
}

// readSample reads up to limit complete lines from the start of the file.
// A trailing line without a newline is ignored, as it may still be written.
func readSample(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	reader := bufio.NewReader(f)
	for len(lines) < limit {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return lines, err
		}
		if len(line) > 0 && strings.HasSuffix(string(line), "\n") {
			lines = append(lines, strings.TrimRight(string(line), "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return lines, nil
}
