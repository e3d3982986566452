// Package pager serves ascending logical slices over a merged directory's
// descending physical chunks. Logical index 1 is the oldest entry and total
// the newest; the mapping to physical position is phys = total - idx. An
// optional filter narrows what total and range mean without re-merging.
package pager

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/braidlog/braid/internal/chunkstore"
	"github.com/braidlog/braid/internal/model"
)

var errNotBound = errors.New("pager: no manifest directory bound")

var _ model.ReadAPI = (*Service)(nil)

// Service is the pagination engine. It starts unbound; SetManifestDir is the
// only way to point it at a merge session. A directory watcher reloads the
// manifest whenever a session updates it, bumping the version so stale
// readers can detect the change.
type Service struct {
	mu      sync.RWMutex
	dir     string
	man     *chunkstore.Manifest
	version int64

	filter  *model.Filter
	match   *matcher
	matched []int64 // ascending physical positions, nil when unfiltered

	watcher *fsnotify.Watcher
}

// New returns an unbound Service with its manifest watcher running.
func New() (*Service, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pager: create watcher: %w", err)
	}
	s := &Service{watcher: w}
	go s.watchLoop()
	return s, nil
}

// Close stops the manifest watcher. The service stays readable.
func (s *Service) Close() error {
	return s.watcher.Close()
}

func (s *Service) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != chunkstore.ManifestName {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				log.Printf("pager: reload after %s: %v", ev.Op, err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("pager: watch: %v", err)
		}
	}
}

// SetManifestDir binds the service to a merged directory, loading (and
// healing) whatever manifest is there. A missing manifest binds to an empty
// view; the watcher picks it up once a session writes it.
func (s *Service) SetManifestDir(dir string) error {
	man, err := chunkstore.LoadOrCreate(dir)
	if err != nil {
		return fmt.Errorf("pager: bind %s: %w", dir, err)
	}

	s.mu.Lock()
	old := s.dir
	s.dir = dir
	s.man = man
	s.version++
	rescanErr := s.rescanLocked()
	s.mu.Unlock()

	if old != "" && old != dir {
		_ = s.watcher.Remove(old)
	}
	if err := s.watcher.Add(dir); err != nil {
		log.Printf("pager: watch %s: %v", dir, err)
	}
	return rescanErr
}

// ManifestDir returns the bound directory, empty when unbound.
func (s *Service) ManifestDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// Reload re-reads the manifest of the bound directory and bumps the version.
// An active filter is re-evaluated against the new chunk set.
func (s *Service) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return errNotBound
	}
	man, err := chunkstore.LoadOrCreate(s.dir)
	if err != nil {
		return fmt.Errorf("pager: reload: %w", err)
	}
	s.man = man
	s.version++
	return s.rescanLocked()
}

// SetFilter narrows the logical view. The previous filter, if any, is
// replaced; a nil or empty filter clears instead.
func (s *Service) SetFilter(f *model.Filter) error {
	if f.IsZero() {
		return s.ClearFilter()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return errNotBound
	}
	cp := *f
	s.filter = &cp
	s.match = newMatcher(&cp)
	s.version++
	return s.rescanLocked()
}

// ClearFilter reverts totals and ranges to the full merged set.
func (s *Service) ClearFilter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return errNotBound
	}
	if s.filter == nil {
		return nil
	}
	s.filter = nil
	s.match = nil
	s.matched = nil
	s.version++
	return nil
}

// rescanLocked rebuilds the matched position index for the active filter by
// one sequential scan over the chunks. Caller holds the write lock.
func (s *Service) rescanLocked() error {
	if s.filter == nil {
		s.matched = nil
		return nil
	}
	matched := []int64{}
	for _, c := range s.man.Chunks {
		entries, err := chunkstore.ReadChunk(s.dir, c)
		if err != nil {
			s.matched = matched
			return fmt.Errorf("pager: filter scan: %w", err)
		}
		for i := range entries {
			if s.match.matches(&entries[i]) {
				matched = append(matched, c.Start+int64(i))
			}
		}
	}
	s.matched = matched
	return nil
}

// Total returns the logical entry count of the current view.
func (s *Service) Total() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == "" {
		return 0, errNotBound
	}
	return s.totalLocked(), nil
}

func (s *Service) totalLocked() int64 {
	if s.matched != nil {
		return int64(len(s.matched))
	}
	return s.man.MergedLines
}

// Manifest describes the bound session.
func (s *Service) Manifest() (model.ManifestInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == "" {
		return model.ManifestInfo{}, errNotBound
	}
	return model.ManifestInfo{
		Dir:         s.dir,
		CreatedAt:   s.man.CreatedAt,
		MergedLines: s.man.MergedLines,
		ChunkCount:  s.man.ChunkCount,
		Filtered:    s.filter != nil,
		Version:     s.version,
	}, nil
}

// ReadRangeByIdx returns logical entries [startIdx, endIdx], 1-based
// ascending inclusive, clamped to the current view. Ranges entirely outside
// the view yield an empty result, never an error. Entries come back oldest
// first with Idx stamped; ID keeps the physical 1-based position so callers
// can locate a row's chunk.
func (s *Service) ReadRangeByIdx(startIdx, endIdx int64) ([]model.LogEntry, model.View, error) {
	s.mu.RLock()
	if s.dir == "" {
		s.mu.RUnlock()
		return nil, model.View{}, errNotBound
	}
	dir, man, matched := s.dir, s.man, s.matched
	total := s.totalLocked()
	view := model.View{Version: s.version, Total: total}
	s.mu.RUnlock()

	// Chunks are immutable once named by a manifest, so reads need no lock.
	start, end, ok := clampRange(startIdx, endIdx, total)
	if !ok {
		return nil, view, nil
	}

	var rows []model.LogEntry
	var err error
	if matched == nil {
		rows, err = readPhysRange(dir, man, total-end, total-start)
	} else {
		rows, err = readPhysAt(dir, man, matched[total-end:total-start+1])
	}
	if err != nil {
		return nil, view, err
	}

	// Physical order is descending; flip to ascending and stamp Idx.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	for k := range rows {
		rows[k].Idx = start + int64(k)
	}
	return rows, view, nil
}

func clampRange(start, end, total int64) (int64, int64, bool) {
	if total == 0 {
		return 0, 0, false
	}
	if start < 1 {
		start = 1
	}
	if end > total {
		end = total
	}
	if start > total || end < 1 || start > end {
		return 0, 0, false
	}
	return start, end, true
}

// chunkIndexFor locates the chunk covering physical position p by binary
// search over the manifest's sorted start offsets.
func chunkIndexFor(man *chunkstore.Manifest, p int64) (int, error) {
	i := sort.Search(len(man.Chunks), func(i int) bool {
		return man.Chunks[i].Start > p
	}) - 1
	if i < 0 || p >= man.Chunks[i].Start+man.Chunks[i].Lines {
		return 0, fmt.Errorf("pager: position %d outside manifest", p)
	}
	return i, nil
}

// readPhysRange collects the contiguous physical range [lo, hi], opening
// only the covering chunks.
func readPhysRange(dir string, man *chunkstore.Manifest, lo, hi int64) ([]model.LogEntry, error) {
	out := make([]model.LogEntry, 0, hi-lo+1)
	i, err := chunkIndexFor(man, lo)
	if err != nil {
		return nil, err
	}
	for ; i < len(man.Chunks); i++ {
		c := man.Chunks[i]
		if c.Start > hi {
			break
		}
		entries, err := chunkstore.ReadChunk(dir, c)
		if err != nil {
			return nil, err
		}
		from := lo - c.Start
		if from < 0 {
			from = 0
		}
		to := hi - c.Start + 1
		if to > c.Lines {
			to = c.Lines
		}
		if to > int64(len(entries)) {
			to = int64(len(entries))
		}
		if from >= to {
			return nil, fmt.Errorf("pager: chunk %s shorter than manifest claims", c.File)
		}
		out = append(out, entries[from:to]...)
	}
	return out, nil
}

// readPhysAt collects rows at the given ascending physical positions,
// loading each covering chunk once.
func readPhysAt(dir string, man *chunkstore.Manifest, positions []int64) ([]model.LogEntry, error) {
	out := make([]model.LogEntry, 0, len(positions))
	var cached []model.LogEntry
	cstart, cend := int64(0), int64(-1)
	for _, p := range positions {
		if p < cstart || p > cend {
			i, err := chunkIndexFor(man, p)
			if err != nil {
				return nil, err
			}
			c := man.Chunks[i]
			cached, err = chunkstore.ReadChunk(dir, c)
			if err != nil {
				return nil, err
			}
			lines := c.Lines
			if int64(len(cached)) < lines {
				lines = int64(len(cached))
			}
			cstart, cend = c.Start, c.Start+lines-1
			if p > cend {
				return nil, fmt.Errorf("pager: chunk %s shorter than manifest claims", c.File)
			}
		}
		out = append(out, cached[p-cstart])
	}
	return out, nil
}

// matcher is a compiled filter. PID matches as a word-bounded token of the
// row text, process and contains as substrings, file against the row's base
// name.
type matcher struct {
	pidRe    *regexp.Regexp
	file     string
	process  string
	contains string
}

func newMatcher(f *model.Filter) *matcher {
	m := &matcher{process: f.Process, contains: f.Contains}
	if f.File != "" {
		m.file = filepath.Base(f.File)
	}
	if f.PID != "" {
		m.pidRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(f.PID) + `\b`)
	}
	return m
}

func (m *matcher) matches(e *model.LogEntry) bool {
	if m.pidRe != nil && !m.pidRe.MatchString(e.Text) {
		return false
	}
	if m.file != "" && e.File != m.file {
		return false
	}
	if m.process != "" && !strings.Contains(e.Text, m.process) {
		return false
	}
	if m.contains != "" && !strings.Contains(e.Text, m.contains) {
		return false
	}
	return true
}
