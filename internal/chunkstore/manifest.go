// Package chunkstore persists merged output as a sequence of bounded,
// write-once JSONL chunk files addressed by a single manifest. The manifest
// is replaced atomically on every update so a concurrent reader sees either
// the old complete index or the new one, never a torn write.
package chunkstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

const (
	// ManifestName is the manifest file name inside a merged directory.
	ManifestName = "manifest.json"

	manifestVersion = 1

	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// ChunkMeta addresses one chunk file. Start is the 0-based logical offset of
// the chunk's first row within the physical (descending) merged order.
type ChunkMeta struct {
	File  string `json:"file"`
	Lines int64  `json:"lines"`
	Start int64  `json:"start"`
}

// Manifest is the source-of-truth index over a merged directory's chunks.
// TotalLines mirrors MergedLines for older readers of the manifest format.
type Manifest struct {
	Version     int         `json:"version"`
	CreatedAt   string      `json:"createdAt"`
	MergedLines int64       `json:"mergedLines"`
	ChunkCount  int         `json:"chunkCount"`
	Chunks      []ChunkMeta `json:"chunks"`
	TotalLines  int64       `json:"totalLines,omitempty"`
}

func newManifest() *Manifest {
	return &Manifest{
		Version:   manifestVersion,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// LoadOrCreate reads the manifest under dir, healing whatever it finds. A
// missing or unreadable manifest yields a fresh one; invalid chunk records
// are dropped and totals recomputed, never surfaced as an error.
func LoadOrCreate(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newManifest(), nil
		}
		return nil, fmt.Errorf("chunkstore: read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("chunkstore: manifest unreadable, starting fresh: %v", err)
		return newManifest(), nil
	}
	m.heal()
	return &m, nil
}

// heal drops invalid chunk records, re-sorts by start offset, keeps the
// longest contiguous prefix and recomputes the totals from what survived.
func (m *Manifest) heal() {
	kept := m.Chunks[:0]
	for _, c := range m.Chunks {
		if c.File == "" || c.Lines <= 0 {
			continue
		}
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })

	var expected int64
	n := 0
	for _, c := range kept {
		if c.Start != expected {
			break
		}
		expected += c.Lines
		n++
	}
	m.Chunks = kept[:n]
	m.MergedLines = expected
	m.ChunkCount = n
	m.TotalLines = expected
	if m.Version == 0 {
		m.Version = manifestVersion
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
}

// Save atomically replaces the manifest under dir. Derived fields are
// refreshed first so the persisted file is always internally consistent.
func (m *Manifest) Save(dir string) error {
	m.ChunkCount = len(m.Chunks)
	m.TotalLines = m.MergedLines

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("chunkstore: marshal manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, ManifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, defaultFileMode); err != nil {
		return fmt.Errorf("chunkstore: write manifest tmp: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, defaultFileMode)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chunkstore: open manifest tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("chunkstore: sync manifest tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chunkstore: close manifest tmp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chunkstore: rename manifest: %w", err)
	}
	return nil
}

var chunkNameRe = regexp.MustCompile(`^chunk-(\d+)\.jsonl$`)

// ChunkName formats the file name for chunk number n.
func ChunkName(n int) string {
	return fmt.Sprintf("chunk-%06d.jsonl", n)
}

func chunkNumber(name string) (int, bool) {
	sub := chunkNameRe.FindStringSubmatch(name)
	if sub == nil {
		return 0, false
	}
	n, err := strconv.Atoi(sub[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextChunkNumber computes the number for the next chunk from the highest
// number recorded in the manifest, never from a directory listing.
func (m *Manifest) NextChunkNumber() int {
	next := 1
	for _, c := range m.Chunks {
		if n, ok := chunkNumber(c.File); ok && n+1 > next {
			next = n + 1
		}
	}
	return next
}
