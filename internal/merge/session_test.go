package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"github.com/braidlog/braid/internal/chunkstore"
	"github.com/braidlog/braid/internal/model"
)

func writeManyLines(t *testing.T, dir string, n int) {
	t.Helper()
	var lines []string
	for i := 0; i < n; i++ {
		lines = append(lines, isoLine(i, fmt.Sprintf("event %d", i)))
	}
	writeLog(t, dir, "kernel.log", lines)
}

func TestRunPersistsChunks(t *testing.T) {
	inDir := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")
	writeManyLines(t, inDir, 450)

	stats, err := Run(context.Background(), SessionOptions{
		Options:       Options{Dir: inDir, BatchSize: 200},
		MergedDir:     mergedDir,
		ChunkMaxLines: 100,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Lines != 450 {
		t.Fatalf("Lines = %d, want 450", stats.Lines)
	}

	m, err := chunkstore.LoadOrCreate(mergedDir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if m.MergedLines != 450 || m.ChunkCount != 5 {
		t.Fatalf("manifest = %+v", m)
	}
	wantLines := []int64{100, 100, 100, 100, 50}
	for i, c := range m.Chunks {
		if c.Lines != wantLines[i] {
			t.Errorf("chunk %d lines = %d, want %d", i, c.Lines, wantLines[i])
		}
		if c.Start != int64(i)*100 {
			t.Errorf("chunk %d start = %d, want %d", i, c.Start, i*100)
		}
	}

	entries, err := chunkstore.ReadChunk(mergedDir, m.Chunks[0])
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if len(entries) != 100 {
		t.Fatalf("chunk 0 has %d entries, want 100", len(entries))
	}
	if entries[0].ID != 1 || entries[99].ID != 100 {
		t.Fatalf("chunk 0 IDs = %d..%d", entries[0].ID, entries[99].ID)
	}
	// Physical order is newest first.
	if entries[0].TS != tsAt(449) {
		t.Fatalf("first persisted TS = %d, want %d", entries[0].TS, tsAt(449))
	}
}

func TestRunWarmupNotPersisted(t *testing.T) {
	inDir := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")
	writeManyLines(t, inDir, 60)

	sawWarmup := false
	stats, err := Run(context.Background(), SessionOptions{
		Options: Options{
			Dir:                inDir,
			BatchSize:          10,
			Warmup:             true,
			WarmupPerFileLimit: 20,
			WarmupTarget:       20,
			OnBatch: func(b model.Batch) error {
				if b.Warmup {
					sawWarmup = true
				}
				return nil
			},
		},
		MergedDir:     mergedDir,
		ChunkMaxLines: 25,
		Raw:           true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sawWarmup {
		t.Fatalf("warmup batches never reached the callback")
	}
	if stats.WarmupLines != 20 || stats.Lines != 60 {
		t.Fatalf("stats = %+v", stats)
	}

	m, err := chunkstore.LoadOrCreate(mergedDir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if m.MergedLines != 60 {
		t.Fatalf("MergedLines = %d, want 60 (warmup must not persist)", m.MergedLines)
	}

	raws, err := filepath.Glob(filepath.Join(mergedDir, "raw-*.jsonl"))
	if err != nil || len(raws) != 1 {
		t.Fatalf("raw journals = %v (err %v), want exactly one", raws, err)
	}
	data, err := os.ReadFile(raws[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if n := bytes.Count(data, []byte("\n")); n != 60 {
		t.Fatalf("raw journal has %d lines, want 60", n)
	}

	var first model.LogEntry
	firstLine := data[:bytes.IndexByte(data, '\n')]
	if err := json.Unmarshal(firstLine, &first); err != nil {
		t.Fatalf("Unmarshal raw line: %v", err)
	}
	if first.ID != 1 || first.TS != tsAt(59) {
		t.Fatalf("first raw entry = %+v", first)
	}
}

func TestRunLockHeld(t *testing.T) {
	inDir := t.TempDir()
	mergedDir := t.TempDir()
	writeManyLines(t, inDir, 5)

	held := flock.New(filepath.Join(mergedDir, LockName))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: %v (locked %v)", err, locked)
	}
	defer held.Unlock()

	_, err = Run(context.Background(), SessionOptions{
		Options:   Options{Dir: inDir},
		MergedDir: mergedDir,
	})
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Fatalf("err = %v, want lock refusal", err)
	}
}

func TestRunReverseNotPersisted(t *testing.T) {
	inDir := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")
	writeManyLines(t, inDir, 4)

	_, err := Run(context.Background(), SessionOptions{
		Options:   Options{Dir: inDir, Reverse: true},
		MergedDir: mergedDir,
	})
	if err == nil || !strings.Contains(err.Error(), "newest-first") {
		t.Fatalf("err = %v, want reverse refusal", err)
	}
	if _, err := os.Stat(mergedDir); !os.IsNotExist(err) {
		t.Fatalf("refused session created %s", mergedDir)
	}

	// Without a session dir the reverse merge runs and delivers
	// oldest-first, matching what any later read would expect.
	var got []model.LogEntry
	stats, err := Run(context.Background(), SessionOptions{
		Options: Options{Dir: inDir, Reverse: true, OnBatch: func(b model.Batch) error {
			got = append(got, b.Entries...)
			return nil
		}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Lines != 4 || len(got) != 4 {
		t.Fatalf("stats = %+v, delivered %d entries", stats, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].TS <= got[i-1].TS {
			t.Fatalf("entry %d: TS %d not after %d", i, got[i].TS, got[i-1].TS)
		}
	}
}

func TestRunSequentialSessionsResume(t *testing.T) {
	inDir := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")
	writeManyLines(t, inDir, 25)

	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), SessionOptions{
			Options:       Options{Dir: inDir},
			MergedDir:     mergedDir,
			ChunkMaxLines: 10,
		}); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	m, err := chunkstore.LoadOrCreate(mergedDir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if m.MergedLines != 50 || m.ChunkCount != 6 {
		t.Fatalf("manifest = %+v", m)
	}
	if m.Chunks[5].File != chunkstore.ChunkName(6) {
		t.Fatalf("last chunk = %s", m.Chunks[5].File)
	}

	entries, err := chunkstore.ReadChunk(mergedDir, m.Chunks[3])
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if entries[0].ID != 26 {
		t.Fatalf("second session IDs start at %d, want 26", entries[0].ID)
	}
}

func TestRunEmptyInput(t *testing.T) {
	inDir := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")

	stats, err := Run(context.Background(), SessionOptions{
		Options:   Options{Dir: inDir},
		MergedDir: mergedDir,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Lines != 0 {
		t.Fatalf("Lines = %d, want 0", stats.Lines)
	}

	m, err := chunkstore.LoadOrCreate(mergedDir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if m.MergedLines != 0 || m.ChunkCount != 0 {
		t.Fatalf("manifest = %+v", m)
	}
	if _, err := os.Stat(filepath.Join(mergedDir, chunkstore.ManifestName)); err != nil {
		t.Fatalf("manifest file missing: %v", err)
	}
}
