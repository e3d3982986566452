// Package merge produces the globally time-ordered stream over a directory
// of device log files. A k-way heap merge across per-file cursors keeps
// memory bounded by the number of open files, not by input size; output is
// delivered in bounded batches through a caller-supplied callback.
package merge

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/braidlog/braid/internal/extract"
	"github.com/braidlog/braid/internal/model"
	"github.com/braidlog/braid/internal/ruleset"
)

// Options configures one merge run.
type Options struct {
	// Dir is the input directory of log files.
	Dir string
	// Ruleset enables custom parsing for files that pass preflight. Nil
	// means every file goes through the heuristic extractor.
	Ruleset *ruleset.Ruleset
	// ParserOnly drops files the compiled parser does not apply to instead
	// of merging them heuristically.
	ParserOnly bool
	// BatchSize caps entries per callback invocation.
	BatchSize int
	// Reverse asks for ascending (oldest first) output. The default is
	// descending, newest first. Reversal mirrors the whole merge key
	// (ts, fileRank, revIndex), tie-breaks included, so the ascending
	// stream is the exact reversal of the descending one.
	Reverse bool
	// Warmup enables the approximate first pass.
	Warmup             bool
	WarmupPerFileLimit int64
	WarmupTarget       int64
	// Include/Exclude are glob patterns applied to base names.
	Include []string
	Exclude []string
	// OnBatch receives each batch in sequence order. A returned error
	// aborts the merge.
	OnBatch func(model.Batch) error
}

// Stats summarizes one merge run.
type Stats struct {
	Files       int   // files merged
	Skipped     int   // unreadable files skipped at open time
	Filtered    int   // files rejected by parser applicability
	Lines       int64 // entries delivered in the authoritative phase
	Batches     int64 // batches delivered in the authoritative phase
	WarmupLines int64
	Cancelled   bool
}

type inputFile struct {
	path string
	base string
	rank int
	ex   *extract.Extractor
}

// Merge runs the engine over opts.Dir and resolves once every batch has been
// delivered or the context was cancelled. Cancellation is not an error: the
// caller sees a truncated but internally consistent prefix.
func Merge(ctx context.Context, opts Options) (*Stats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = model.DefaultBatchSize
	}
	if opts.WarmupPerFileLimit <= 0 {
		opts.WarmupPerFileLimit = model.DefaultWarmupPerFileLimit
	}
	if opts.WarmupTarget <= 0 {
		opts.WarmupTarget = model.DefaultWarmupTarget
	}

	files, filtered, err := discover(opts)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Filtered: filtered}

	if opts.Warmup {
		warmLines, _, err := runPhase(ctx, opts, files, stats, true)
		if err != nil {
			return stats, err
		}
		stats.WarmupLines = warmLines
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}
	}

	lines, batches, err := runPhase(ctx, opts, files, stats, false)
	stats.Lines = lines
	stats.Batches = batches
	if err != nil {
		return stats, err
	}
	if ctx.Err() != nil {
		stats.Cancelled = true
	}
	return stats, nil
}

func discover(opts Options) ([]inputFile, int, error) {
	dirEntries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, 0, fmt.Errorf("merge: read input dir: %w", err)
	}

	var files []inputFile
	filtered := 0
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		base := de.Name()
		if strings.HasPrefix(base, ".") {
			continue
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, base) {
			continue
		}
		if matchAny(opts.Exclude, base) {
			continue
		}

		path := filepath.Join(opts.Dir, base)
		useParser := false
		if opts.Ruleset != nil {
			useParser = opts.Ruleset.ShouldUseParserForFile(path)
		}
		if opts.ParserOnly && !useParser {
			filtered++
			continue
		}

		ex := extract.Heuristic()
		if useParser {
			if rule, ok := opts.Ruleset.RuleFor(base); ok {
				ex = extract.WithRule(rule)
			}
		}
		files = append(files, inputFile{path: path, base: base, rank: len(files), ex: ex})
	}
	return files, filtered, nil
}

func matchAny(patterns []string, base string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, base)
		if err != nil {
			log.Printf("merge: invalid glob %q: %v", p, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// runPhase executes one complete pass. The warmup pass caps every cursor and
// stops at the warmup target; the authoritative pass is exhaustive. Both
// deliver through the same callback contract.
func runPhase(ctx context.Context, opts Options, files []inputFile, stats *Stats, warmup bool) (int64, int64, error) {
	var limit int64
	if warmup {
		limit = opts.WarmupPerFileLimit
	}

	h := &cursorHeap{reverse: opts.Reverse}
	var cursors []*cursor
	defer func() {
		for _, c := range cursors {
			c.stop()
		}
	}()

	opened := 0
	for _, in := range files {
		c, err := newCursor(ctx, in.path, in.rank, in.ex, opts.Reverse, limit)
		if err != nil {
			log.Printf("merge: skipping %s: %v", in.path, err)
			if !warmup {
				stats.Skipped++
			}
			continue
		}
		cursors = append(cursors, c)
		opened++
		if c.advance() {
			h.cursors = append(h.cursors, c)
		}
	}
	if !warmup {
		stats.Files = opened
	}
	heap.Init(h)

	batch := make([]model.LogEntry, 0, opts.BatchSize)
	var seq, delivered, id int64

	deliver := func() error {
		seq++
		b := model.Batch{Seq: seq, Warmup: warmup, Entries: batch}
		if opts.OnBatch != nil {
			if err := opts.OnBatch(b); err != nil {
				return fmt.Errorf("merge: batch callback: %w", err)
			}
		}
		delivered += int64(len(batch))
		// The callback may retain the slice.
		batch = make([]model.LogEntry, 0, opts.BatchSize)
		return nil
	}

	for h.Len() > 0 {
		c := h.cursors[0]
		entry := c.head
		id++
		entry.ID = id
		batch = append(batch, entry)

		if c.advance() {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}

		if len(batch) >= opts.BatchSize {
			if ctx.Err() != nil {
				log.Printf("merge: cancelled after %d lines", delivered)
				return delivered, seq, nil
			}
			if err := deliver(); err != nil {
				return delivered, seq, err
			}
		}
		if warmup && id >= opts.WarmupTarget {
			break
		}
	}

	if len(batch) > 0 {
		if ctx.Err() != nil {
			log.Printf("merge: cancelled after %d lines", delivered)
			return delivered, seq, nil
		}
		if err := deliver(); err != nil {
			return delivered, seq, err
		}
	}
	return delivered, seq, nil
}

// cursorHeap orders cursor heads by the merge key (ts, fileRank, revIndex).
// The reverse flag mirrors the whole comparison, tie-breaks included, so an
// ascending merge is the exact reversal of the descending one.
type cursorHeap struct {
	cursors []*cursor
	reverse bool
}

// lessDescending is the physical order: newest first, ties broken by file
// discovery rank, then by distance from the file's end.
func lessDescending(a, b model.LogEntry) bool {
	if a.TS != b.TS {
		return a.TS > b.TS
	}
	if a.FileRank != b.FileRank {
		return a.FileRank < b.FileRank
	}
	return a.RevIndex < b.RevIndex
}

func (h *cursorHeap) Len() int { return len(h.cursors) }

func (h *cursorHeap) Less(i, j int) bool {
	less := lessDescending(h.cursors[i].head, h.cursors[j].head)
	if h.reverse {
		return !less
	}
	return less
}

func (h *cursorHeap) Swap(i, j int) {
	h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i]
}

func (h *cursorHeap) Push(x interface{}) {
	h.cursors = append(h.cursors, x.(*cursor))
}

func (h *cursorHeap) Pop() interface{} {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	h.cursors = old[:n-1]
	return c
}
