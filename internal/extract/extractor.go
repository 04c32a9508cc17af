// Package extract invokes the glyph-to-text extraction tool as a
// subprocess. The extraction algorithm itself lives outside this codebase;
// the contract is the tool's CLI: it reads a renderer payload directory via
// --extract-root, writes its outputs under --output-dir, and leaves the
// recovered text in extracted.txt.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const outputFilename = "extracted.txt"

// Extractor is the interface for text extraction backends.
type Extractor interface {
	Extract(ctx context.Context, extractRoot, outputDir string) (string, error)
}

// CommandExtractor runs a configured extraction command.
type CommandExtractor struct {
	name    string
	args    []string
	timeout time.Duration
	log     zerolog.Logger
}

// NewCommandExtractor creates an extractor from a command line, e.g.
// "python3 -m text_extraction". The --extract-root and --output-dir flags
// are appended per invocation.
func NewCommandExtractor(command string, timeout time.Duration, log zerolog.Logger) (*CommandExtractor, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("extract command must not be empty")
	}
	return &CommandExtractor{
		name:    fields[0],
		args:    fields[1:],
		timeout: timeout,
		log:     log,
	}, nil
}

// Extract runs the extraction tool and returns the recovered text.
func (e *CommandExtractor) Extract(ctx context.Context, extractRoot, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string{}, e.args...),
		"--extract-root", extractRoot,
		"--output-dir", outputDir,
	)
	cmd := exec.CommandContext(ctx, e.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extraction command failed: %w (stderr: %s)", err, tail(stderr.String(), 500))
	}

	text, err := os.ReadFile(filepath.Join(outputDir, outputFilename))
	if err != nil {
		return "", fmt.Errorf("extraction produced no %s: %w", outputFilename, err)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return "", fmt.Errorf("extraction produced empty text")
	}

	e.log.Debug().
		Str("extract_root", extractRoot).
		Int("bytes", len(text)).
		Dur("duration_ms", time.Since(start)).
		Msg("extraction complete")

	return string(text), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
