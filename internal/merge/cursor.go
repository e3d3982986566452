package merge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/braidlog/braid/internal/extract"
	"github.com/braidlog/braid/internal/model"
)

// cursorBuffer is the per-cursor read-ahead window. Memory stays bounded by
// O(files × window) regardless of input size.
const cursorBuffer = 256

// cursor streams one file's entries in output order: newest first by
// default, oldest first when the merge direction is reversed. Decoding runs
// in its own goroutine so disk latency overlaps across files.
type cursor struct {
	rank int
	base string
	path string
	typ  string

	ch     chan model.LogEntry
	cancel context.CancelFunc

	head model.LogEntry
}

// typeFromFile derives the category tag: the base name minus its extension.
func typeFromFile(base string) string {
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// newCursor opens path and starts decoding. limit, when positive, caps how
// many lines are read, counted in read order.
func newCursor(ctx context.Context, path string, rank int, ex *extract.Extractor, reverse bool, limit int64) (*cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	base := filepath.Base(path)

	ctx, cancel := context.WithCancel(ctx)
	c := &cursor{
		rank:   rank,
		base:   base,
		path:   abs,
		typ:    typeFromFile(base),
		ch:     make(chan model.LogEntry, cursorBuffer),
		cancel: cancel,
	}
	if reverse {
		go c.runForward(ctx, f, ex, limit)
	} else {
		go c.runBackward(ctx, f, ex, limit)
	}
	return c, nil
}

// advance pulls the next entry into head. It reports false once the stream
// is exhausted.
func (c *cursor) advance() bool {
	e, ok := <-c.ch
	if !ok {
		return false
	}
	c.head = e
	return true
}

func (c *cursor) stop() {
	c.cancel()
	for range c.ch {
	}
}

func (c *cursor) build(ex extract.Line, revIndex int64) model.LogEntry {
	entry := model.LogEntry{
		TS:       ex.EpochMS,
		Level:    ex.Level,
		Type:     c.typ,
		File:     c.base,
		Path:     c.path,
		Text:     ex.Text,
		FileRank: c.rank,
		RevIndex: revIndex,
	}
	if ex.Parsed != (model.ParsedLine{}) {
		p := ex.Parsed
		entry.Parsed = &p
	}
	return entry
}

// runBackward reads the file last-to-first. A line without a timestamp must
// inherit from the nearest earlier line, which in read order arrives later,
// so such lines wait in a pending run until their donor shows up. A run
// reaching the start of the file is stamped with epoch zero.
func (c *cursor) runBackward(ctx context.Context, f *os.File, ex *extract.Extractor, limit int64) {
	defer close(c.ch)
	defer f.Close()

	sc, err := newBackScanner(f)
	if err != nil {
		log.Printf("merge: scan %s: %v", c.path, err)
		return
	}

	var pending []model.LogEntry
	var read, revIndex int64

	flush := func(ts int64) bool {
		for _, p := range pending {
			p.TS = ts
			if !c.emit(ctx, p) {
				return false
			}
		}
		pending = pending[:0]
		return true
	}

	for (limit <= 0 || read < limit) && sc.Scan() {
		read++
		line := ex.Line(sc.Text())
		entry := c.build(line, revIndex)
		revIndex++

		if !line.TimeOK {
			pending = append(pending, entry)
			continue
		}
		if !flush(entry.TS) {
			return
		}
		if !c.emit(ctx, entry) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Printf("merge: read %s: %v", c.path, err)
	}
	flush(0)
}

// runForward reads the file first-to-last for reversed merges. revIndex is
// still the distance from the file's end, so the line count comes first.
func (c *cursor) runForward(ctx context.Context, f *os.File, ex *extract.Extractor, limit int64) {
	defer close(c.ch)
	defer f.Close()

	total, err := countLines(f)
	if err != nil {
		log.Printf("merge: count %s: %v", c.path, err)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Printf("merge: rewind %s: %v", c.path, err)
		return
	}

	var lastTS int64
	var read int64
	reader := bufio.NewReader(f)
	for limit <= 0 || read < limit {
		raw, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			log.Printf("merge: read %s: %v", c.path, err)
			return
		}
		if len(raw) > 0 {
			read++
			text := strings.TrimSuffix(strings.TrimSuffix(string(raw), "\n"), "\r")
			line := ex.Line(text)
			entry := c.build(line, total-read)
			if line.TimeOK {
				lastTS = entry.TS
			} else {
				entry.TS = lastTS
			}
			if !c.emit(ctx, entry) {
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

func (c *cursor) emit(ctx context.Context, entry model.LogEntry) bool {
	select {
	case c.ch <- entry:
		return true
	case <-ctx.Done():
		return false
	}
}

// countLines counts the file's lines the same way the scanners do: newline
// separated, with an unterminated final line still counting as one.
func countLines(f *os.File) (int64, error) {
	var total int64
	buf := make([]byte, backScanBlockSize)
	var lastByte byte
	seen := false
	for {
		n, err := f.Read(buf)
		if n > 0 {
			seen = true
			for _, b := range buf[:n] {
				if b == '\n' {
					total++
				}
			}
			lastByte = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if seen && lastByte != '\n' {
		total++
	}
	return total, nil
}
