package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func scanAll(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	sc, err := newBackScanner(f)
	if err != nil {
		t.Fatalf("newBackScanner: %v", err)
	}

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	return lines
}

func writeRawFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestBackScannerReversesLines(t *testing.T) {
	dir := t.TempDir()
	path := writeRawFile(t, dir, "a.log", "one\ntwo\nthree\n")

	got := scanAll(t, path)
	want := []string{"three", "two", "one"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBackScannerNoTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := writeRawFile(t, dir, "a.log", "one\ntwo\nthree")

	got := scanAll(t, path)
	want := []string{"three", "two", "one"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBackScannerCRLF(t *testing.T) {
	dir := t.TempDir()
	path := writeRawFile(t, dir, "a.log", "one\r\ntwo\r\nthree\r\n")

	got := scanAll(t, path)
	want := []string{"three", "two", "one"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBackScannerEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRawFile(t, dir, "a.log", "")

	if got := scanAll(t, path); len(got) != 0 {
		t.Fatalf("got %v, want no lines", got)
	}
}

func TestBackScannerBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := writeRawFile(t, dir, "a.log", "a\n\nb\n")

	got := scanAll(t, path)
	want := []string{"b", "", "a"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBackScannerSingleNewline(t *testing.T) {
	dir := t.TempDir()
	path := writeRawFile(t, dir, "a.log", "\n")

	got := scanAll(t, path)
	if len(got) != 1 || got[0] != "" {
		t.Fatalf("got %v, want one empty line", got)
	}
}

// Lines spanning several read blocks must come back intact. The input is
// sized well past the block size with uneven line lengths so splits land
// mid-line.
func TestBackScannerMultiBlock(t *testing.T) {
	dir := t.TempDir()

	var b strings.Builder
	var want []string
	for i := 0; i < 4000; i++ {
		line := fmt.Sprintf("line %05d %s", i, strings.Repeat("x", i%97))
		want = append(want, line)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if b.Len() <= 2*backScanBlockSize {
		t.Fatalf("input too small to cross blocks: %d bytes", b.Len())
	}
	path := writeRawFile(t, dir, "big.log", b.String())

	got := scanAll(t, path)
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[len(want)-1-i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[len(want)-1-i])
		}
	}
}
