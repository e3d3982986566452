package merge

import (
	"bytes"
	"os"
	"strings"
)

const backScanBlockSize = 64 * 1024

// backScanner yields a file's lines last-to-first without ever holding the
// whole file in memory. It reads fixed-size blocks from the end; the partial
// line at each block boundary is carried into the next (earlier) block.
type backScanner struct {
	f   *os.File
	pos int64

	carry     []byte
	haveCarry bool
	tailBlock bool

	queue []string
	cur   string
	err   error
}

func newBackScanner(f *os.File) (*backScanner, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &backScanner{f: f, pos: st.Size(), tailBlock: true}, nil
}

// Scan advances to the next line in reverse file order. It reports false at
// the start of the file or on a read error.
func (b *backScanner) Scan() bool {
	if b.err != nil {
		return false
	}
	for len(b.queue) == 0 {
		if b.pos <= 0 {
			return false
		}
		if err := b.refill(); err != nil {
			b.err = err
			return false
		}
	}
	b.cur = b.queue[0]
	b.queue = b.queue[1:]
	return true
}

// Text returns the current line with any trailing carriage return removed.
func (b *backScanner) Text() string {
	return strings.TrimSuffix(b.cur, "\r")
}

func (b *backScanner) Err() error { return b.err }

func (b *backScanner) refill() error {
	readSize := int64(backScanBlockSize)
	if readSize > b.pos {
		readSize = b.pos
	}
	buf := make([]byte, readSize)
	if _, err := b.f.ReadAt(buf, b.pos-readSize); err != nil {
		return err
	}
	b.pos -= readSize

	chunk := buf
	if b.haveCarry {
		chunk = append(chunk, b.carry...)
	}
	segments := bytes.Split(chunk, []byte("\n"))

	// The first segment may continue a line that starts in an earlier block.
	b.carry = append([]byte(nil), segments[0]...)
	b.haveCarry = true

	rest := segments[1:]
	if b.tailBlock {
		// The void after a final newline is not a line.
		if len(rest) > 0 && len(rest[len(rest)-1]) == 0 {
			rest = rest[:len(rest)-1]
		}
		b.tailBlock = false
	}
	for i := len(rest) - 1; i >= 0; i-- {
		b.queue = append(b.queue, string(rest[i]))
	}

	if b.pos == 0 {
		b.queue = append(b.queue, string(b.carry))
		b.carry = nil
		b.haveCarry = false
	}
	return nil
}
