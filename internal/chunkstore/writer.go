package chunkstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/braidlog/braid/internal/model"
)

// Writer appends merged entries to capped chunk files and keeps the manifest
// current. A chunk becomes visible to readers only after its content is
// flushed and the manifest naming it has been atomically replaced.
//
// Writer is not safe for concurrent use; the merge engine drives it from a
// single goroutine.
type Writer struct {
	dir      string
	maxLines int64
	manifest *Manifest

	nextNum int
	file    *os.File
	buf     *bufio.Writer
	name    string
	lines   int64
}

// NewWriter opens (or resumes) a chunk store under dir. An existing manifest
// is healed and continued: new chunks number from the highest recorded one.
func NewWriter(dir string, maxLines int64) (*Writer, error) {
	if maxLines <= 0 {
		maxLines = model.DefaultChunkMaxLines
	}
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("chunkstore: mkdir: %w", err)
	}
	m, err := LoadOrCreate(dir)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dir:      dir,
		maxLines: maxLines,
		manifest: m,
		nextNum:  m.NextChunkNumber(),
	}, nil
}

// Manifest exposes the writer's live manifest, e.g. for progress reporting.
func (w *Writer) Manifest() *Manifest { return w.manifest }

// Append persists one batch of entries in order, rotating chunks as the cap
// is reached.
func (w *Writer) Append(entries []model.LogEntry) error {
	for i := range entries {
		if err := w.appendOne(&entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendOne(e *model.LogEntry) error {
	if w.file == nil {
		if err := w.openChunk(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(RowFromEntry(*e))
	if err != nil {
		return fmt.Errorf("chunkstore: marshal row: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("chunkstore: write row: %w", err)
	}
	w.lines++

	if w.lines >= w.maxLines {
		return w.rotate()
	}
	return nil
}

func (w *Writer) openChunk() error {
	name := ChunkName(w.nextNum)
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("chunkstore: open chunk %s: %w", name, err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.name = name
	w.lines = 0
	return nil
}

// rotate completes the open chunk: flush and sync its content, then record
// it in the manifest and atomically save. The ordering guarantees the
// manifest never references an incomplete chunk.
func (w *Writer) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("chunkstore: flush chunk %s: %w", w.name, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("chunkstore: sync chunk %s: %w", w.name, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("chunkstore: close chunk %s: %w", w.name, err)
	}

	w.manifest.Chunks = append(w.manifest.Chunks, ChunkMeta{
		File:  w.name,
		Lines: w.lines,
		Start: w.manifest.MergedLines,
	})
	w.manifest.MergedLines += w.lines

	w.file = nil
	w.buf = nil
	w.lines = 0
	w.nextNum++

	return w.manifest.Save(w.dir)
}

// Close flushes a partial final chunk and saves the manifest. Safe to call
// with no entries written; the manifest is still persisted so a pager can
// bind an empty session.
func (w *Writer) Close() error {
	if w.file != nil {
		if w.lines > 0 {
			return w.rotate()
		}
		name := w.name
		_ = w.file.Close()
		_ = os.Remove(filepath.Join(w.dir, name))
		w.file = nil
		w.buf = nil
	}
	return w.manifest.Save(w.dir)
}
