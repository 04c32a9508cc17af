// Package benchmark builds the discrete time-to-position lookup table that
// lets a client resume reading where listening left off. It consumes the
// synthesized audio's timestamp spans plus the interpolation maps from the
// align package and emits one entry per fixed time interval.
package benchmark

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/coverage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/synthesize"
)

// DefaultIntervalSeconds is the benchmark grid spacing. Tunable via config;
// the specific value is not load-bearing beyond "some positive interval".
const DefaultIntervalSeconds = 5.0

var (
	// ErrNoTimestamps is returned when the provider supplied no alignment
	// data. Benchmarks cannot be built without it, so the stage fails
	// rather than emitting a synthetic timeline.
	ErrNoTimestamps = errors.New("provider returned no timestamps")

	// ErrTextMismatch is returned when the provider's aligned text does
	// not match the text sent for synthesis. This is a provider-contract
	// violation; proceeding would produce misaligned benchmarks.
	ErrTextMismatch = errors.New("alignment does not match synthesis text")
)

// Input carries everything Build needs. TextForSynthesis is the exact text
// sent to the provider; CharPositions must have one reading-position entry
// per byte of it. IndexMap and RawText describe the pre-normalization
// extracted text and feed the best-effort TextOriginal field only.
type Input struct {
	Spans            []synthesize.Span
	Granularity      synthesize.Granularity
	TextForSynthesis string
	RawText          string
	IndexMap         []int
	CharPositions    []int
	TotalDuration    float64
	IntervalSeconds  float64
}

// Build produces the benchmark timeline: entries at a fixed interval, sorted
// by time, covering [0, TotalDuration] with no gaps. Each entry's end char
// is the start char of the next interval's resolved span, so no character
// is counted in two adjacent intervals.
func Build(in Input) ([]coverage.BenchmarkEntry, error) {
	if len(in.Spans) == 0 {
		return nil, ErrNoTimestamps
	}
	if in.TotalDuration <= 0 {
		return nil, fmt.Errorf("%w: total duration %v", ErrNoTimestamps, in.TotalDuration)
	}
	if len(in.CharPositions) != len(in.TextForSynthesis) {
		return nil, fmt.Errorf("char position map has %d entries for %d text bytes",
			len(in.CharPositions), len(in.TextForSynthesis))
	}

	interval := in.IntervalSeconds
	if interval <= 0 {
		interval = DefaultIntervalSeconds
	}

	offsets, err := spanOffsets(in.Spans, in.Granularity, in.TextForSynthesis)
	if err != nil {
		return nil, err
	}

	// Character start offset for each grid time: the last span whose start
	// time is <= t.
	var gridTimes []float64
	var gridChars []int
	for t := 0.0; t < in.TotalDuration; t += interval {
		idx := sort.Search(len(in.Spans), func(i int) bool {
			return in.Spans[i].Start > t
		}) - 1
		if idx < 0 {
			idx = 0
		}
		gridTimes = append(gridTimes, t)
		gridChars = append(gridChars, offsets[idx])
	}

	entries := make([]coverage.BenchmarkEntry, len(gridTimes))
	for i := range gridTimes {
		charStart := gridChars[i]
		charEnd := len(in.TextForSynthesis)
		if i+1 < len(gridTimes) {
			charEnd = gridChars[i+1]
		}
		if charEnd < charStart {
			charEnd = charStart
		}

		entries[i] = coverage.BenchmarkEntry{
			TimeSeconds:     gridTimes[i],
			CharIndexStart:  charStart,
			CharIndexEnd:    charEnd,
			PositionIDStart: positionAt(in.CharPositions, charStart),
			PositionIDEnd:   positionAt(in.CharPositions, charEnd-1),
			TextNormalized:  in.TextForSynthesis[charStart:charEnd],
			TextOriginal:    originalSlice(in.RawText, in.IndexMap, charStart, charEnd),
		}
	}
	return entries, nil
}

// spanOffsets maps each span to its byte offset in text. Character spans
// are laid out cumulatively and verified against the text; word spans are
// located by sequential forward search, since word-to-character alignment
// is not given explicitly. Any miss is a provider-contract violation.
func spanOffsets(spans []synthesize.Span, g synthesize.Granularity, text string) ([]int, error) {
	offsets := make([]int, len(spans))

	if g == synthesize.GranularityCharacter {
		off := 0
		for i, sp := range spans {
			if off+len(sp.Text) > len(text) || text[off:off+len(sp.Text)] != sp.Text {
				return nil, fmt.Errorf("%w: char span %d (%q) at offset %d", ErrTextMismatch, i, sp.Text, off)
			}
			offsets[i] = off
			off += len(sp.Text)
		}
		if off != len(text) {
			return nil, fmt.Errorf("%w: alignment covers %d of %d bytes", ErrTextMismatch, off, len(text))
		}
		return offsets, nil
	}

	lower := strings.ToLower(text)
	searchFrom := 0
	for i, sp := range spans {
		w := strings.ToLower(strings.TrimSpace(sp.Text))
		if w == "" {
			offsets[i] = searchFrom
			continue
		}
		idx := strings.Index(lower[searchFrom:], w)
		if idx < 0 {
			return nil, fmt.Errorf("%w: word span %d (%q) not found after offset %d", ErrTextMismatch, i, sp.Text, searchFrom)
		}
		offsets[i] = searchFrom + idx
		searchFrom = searchFrom + idx + len(w)
	}
	return offsets, nil
}

// positionAt returns the interpolated position for a char index, clamped to
// the map's bounds.
func positionAt(positions []int, idx int) int {
	if len(positions) == 0 {
		return 0
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(positions) {
		idx = len(positions) - 1
	}
	return positions[idx]
}

// originalSlice extracts the raw-text slice behind [charStart, charEnd) via
// the normalization index map. Best-effort: when the synthesis text was
// rewritten its indices only approximate the extracted text, so offsets are
// clamped rather than trusted.
func originalSlice(rawText string, indexMap []int, charStart, charEnd int) string {
	if len(indexMap) == 0 || rawText == "" || charEnd <= charStart {
		return ""
	}
	si := charStart
	if si >= len(indexMap) {
		si = len(indexMap) - 1
	}
	ei := charEnd - 1
	if ei >= len(indexMap) {
		ei = len(indexMap) - 1
	}

	rawStart := indexMap[si]
	rawEnd := indexMap[ei] + 1
	if rawStart < 0 || rawStart >= len(rawText) {
		return ""
	}
	if rawEnd > len(rawText) {
		rawEnd = len(rawText)
	}
	if rawEnd <= rawStart {
		return ""
	}
	return rawText[rawStart:rawEnd]
}
