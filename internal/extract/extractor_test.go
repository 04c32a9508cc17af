package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// writeScript creates an executable shell script standing in for the
// extraction tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	// The fake tool writes extracted.txt into the --output-dir argument.
	script := writeScript(t, `
while [ $# -gt 0 ]; do
  if [ "$1" = "--output-dir" ]; then out="$2"; fi
  shift
done
printf 'It was a dark and stormy night.' > "$out/extracted.txt"
`)

	e, err := NewCommandExtractor(script, 10*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	text, err := e.Extract(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "It was a dark and stormy night." {
		t.Errorf("unexpected text %q", text)
	}
}

func TestExtract_CommandFailureIncludesStderr(t *testing.T) {
	script := writeScript(t, `echo "glyph table corrupt" >&2; exit 3`)

	e, err := NewCommandExtractor(script, 10*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	_, err = e.Extract(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "glyph table corrupt") {
		t.Errorf("error should carry stderr tail, got %v", err)
	}
}

func TestExtract_MissingOutputFile(t *testing.T) {
	script := writeScript(t, `exit 0`)

	e, err := NewCommandExtractor(script, 10*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	if _, err := e.Extract(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("expected error when tool writes no output")
	}
}

func TestExtract_EmptyOutputFails(t *testing.T) {
	script := writeScript(t, `
while [ $# -gt 0 ]; do
  if [ "$1" = "--output-dir" ]; then out="$2"; fi
  shift
done
printf '  \n ' > "$out/extracted.txt"
`)

	e, err := NewCommandExtractor(script, 10*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	if _, err := e.Extract(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("expected error for whitespace-only output")
	}
}

func TestNewCommandExtractor_EmptyCommand(t *testing.T) {
	if _, err := NewCommandExtractor("   ", time.Second, zerolog.Nop()); err == nil {
		t.Error("expected error for empty command")
	}
}
