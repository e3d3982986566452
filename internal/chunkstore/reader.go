package chunkstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/braidlog/braid/internal/model"
)

// ReadChunk decodes one chunk's rows in stored (descending) order. Each
// entry's ID is stamped from the chunk's start offset. Chunks are write-once
// so concurrent reads need no locking; a partial trailing line is ignored
// rather than failing the read.
func ReadChunk(dir string, meta ChunkMeta) ([]model.LogEntry, error) {
	f, err := os.Open(filepath.Join(dir, meta.File))
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open chunk %s: %w", meta.File, err)
	}
	defer f.Close()

	entries := make([]model.LogEntry, 0, meta.Lines)
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("chunkstore: read chunk %s: %w", meta.File, err)
		}
		if len(line) > 0 && strings.HasSuffix(string(line), "\n") {
			var r Row
			if uerr := json.Unmarshal(line, &r); uerr != nil {
				return nil, fmt.Errorf("chunkstore: decode chunk %s: %w", meta.File, uerr)
			}
			e := r.Entry()
			e.ID = meta.Start + int64(len(entries)) + 1
			entries = append(entries, e)
		}
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
	}
}
