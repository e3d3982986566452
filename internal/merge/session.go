package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/braidlog/braid/internal/chunkstore"
	"github.com/braidlog/braid/internal/model"
)

// LockName is the advisory lock file guarding a merged directory. Two
// sessions writing the same chunk sequence would corrupt the manifest.
const LockName = ".braid.lock"

const defaultFileMode = 0644

// SessionOptions extends Options with persistence settings.
type SessionOptions struct {
	Options

	// MergedDir receives chunk files and the manifest. Empty runs the
	// engine without persistence.
	MergedDir string
	// ChunkMaxLines caps lines per chunk file.
	ChunkMaxLines int64
	// Raw additionally appends every persisted entry to a per-session
	// JSONL journal next to the chunks.
	Raw bool
}

// Run executes one merge session: engine batches are persisted as chunks
// under MergedDir while the caller's OnBatch, if any, still fires. Warmup
// batches are provisional and never persisted. Reverse runs are refused:
// persisted chunks always hold the newest-first physical order the
// pagination mapping is built on.
func Run(ctx context.Context, opts SessionOptions) (*Stats, error) {
	if opts.MergedDir == "" {
		return Merge(ctx, opts.Options)
	}
	if opts.Reverse {
		return nil, errors.New("merge: reverse order cannot be persisted, chunks are stored newest-first")
	}
	if err := os.MkdirAll(opts.MergedDir, 0755); err != nil {
		return nil, fmt.Errorf("merge: create merged dir: %w", err)
	}

	lock := flock.New(filepath.Join(opts.MergedDir, LockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("merge: acquire session lock: %w", err)
	}
	if !locked {
		return nil, errors.New("merge: merged dir is locked by another session")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("merge: release session lock: %v", err)
		}
	}()

	writer, err := chunkstore.NewWriter(opts.MergedDir, opts.ChunkMaxLines)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	var raw *os.File
	if opts.Raw {
		rawPath := filepath.Join(opts.MergedDir, "raw-"+sessionID+".jsonl")
		raw, err = os.OpenFile(rawPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
		if err != nil {
			// The raw journal is best effort, the session goes on.
			log.Printf("merge: raw journal disabled: %v", err)
			raw = nil
		} else {
			f := raw
			defer func() {
				if err := f.Close(); err != nil {
					log.Printf("merge: close raw journal: %v", err)
				}
			}()
		}
	}

	userBatch := opts.OnBatch
	opts.OnBatch = func(b model.Batch) error {
		if !b.Warmup {
			if err := writer.Append(b.Entries); err != nil {
				return err
			}
			if raw != nil && !appendRaw(raw, b.Entries) {
				raw = nil
			}
		}
		if userBatch != nil {
			return userBatch(b)
		}
		return nil
	}

	start := time.Now()
	log.Printf("merge: session %s started: dir=%s merged=%s", sessionID, opts.Dir, opts.MergedDir)

	stats, err := Merge(ctx, opts.Options)
	if cerr := writer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return stats, err
	}

	log.Printf("merge: session %s finished: files=%d lines=%d batches=%d elapsed=%s",
		sessionID, stats.Files, stats.Lines, stats.Batches, time.Since(start).Round(time.Millisecond))
	return stats, nil
}

// appendRaw writes entries to the raw journal. A write failure is logged and
// reported so the caller abandons the journal for the rest of the session;
// the chunk store stays authoritative.
func appendRaw(f *os.File, entries []model.LogEntry) bool {
	for i := range entries {
		line, err := json.Marshal(&entries[i])
		if err != nil {
			log.Printf("merge: encode raw entry: %v", err)
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			log.Printf("merge: raw journal write, disabling journal: %v", err)
			return false
		}
	}
	return true
}
