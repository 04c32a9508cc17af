package benchmark

import (
	"errors"
	"strings"
	"testing"

	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/align"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/synthesize"
)

// charSpans builds one character span per byte of text, evenly spaced over
// duration seconds.
func charSpans(text string, duration float64) []synthesize.Span {
	spans := make([]synthesize.Span, len(text))
	step := duration / float64(len(text))
	for i := 0; i < len(text); i++ {
		spans[i] = synthesize.Span{
			Text:  text[i : i+1],
			Start: float64(i) * step,
			End:   float64(i+1) * step,
		}
	}
	return spans
}

func TestBuild_CoversFullDurationWithoutGaps(t *testing.T) {
	text := strings.Repeat("abcde fghi ", 20) // 220 bytes
	in := Input{
		Spans:            charSpans(text, 22.0),
		Granularity:      synthesize.GranularityCharacter,
		TextForSynthesis: text,
		RawText:          text,
		IndexMap:         identityMap(len(text)),
		CharPositions:    align.InterpolatePositions(len(text), 1000, 5000),
		TotalDuration:    22.0,
		IntervalSeconds:  5.0,
	}

	entries, err := Build(in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(entries) != 5 { // 0, 5, 10, 15, 20
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0].TimeSeconds != 0 {
		t.Errorf("first entry should start at 0, got %v", entries[0].TimeSeconds)
	}
	for i := 1; i < len(entries); i++ {
		gap := entries[i].TimeSeconds - entries[i-1].TimeSeconds
		if gap != 5.0 {
			t.Errorf("entry %d: gap %v != interval", i, gap)
		}
		// No character counted twice across adjacent intervals.
		if entries[i].CharIndexStart != entries[i-1].CharIndexEnd {
			t.Errorf("entry %d: start %d != previous end %d",
				i, entries[i].CharIndexStart, entries[i-1].CharIndexEnd)
		}
	}
	last := entries[len(entries)-1]
	if last.CharIndexEnd != len(text) {
		t.Errorf("last entry end %d != text length %d", last.CharIndexEnd, len(text))
	}
	for i, e := range entries {
		if e.CharIndexEnd > len(text) {
			t.Errorf("entry %d: end %d exceeds text length", i, e.CharIndexEnd)
		}
	}
}

func TestBuild_PositionsFollowInterpolation(t *testing.T) {
	text := strings.Repeat("x", 100)
	positions := align.InterpolatePositions(len(text), 1000, 5000)
	in := Input{
		Spans:            charSpans(text, 10.0),
		Granularity:      synthesize.GranularityCharacter,
		TextForSynthesis: text,
		RawText:          text,
		IndexMap:         identityMap(len(text)),
		CharPositions:    positions,
		TotalDuration:    10.0,
		IntervalSeconds:  5.0,
	}

	entries, err := Build(in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if entries[0].PositionIDStart != 1000 {
		t.Errorf("first entry position start: expected 1000, got %d", entries[0].PositionIDStart)
	}
	last := entries[len(entries)-1]
	if last.PositionIDEnd != 5000 {
		t.Errorf("last entry position end: expected 5000, got %d", last.PositionIDEnd)
	}
	// Position starts never decrease across the timeline.
	for i := 1; i < len(entries); i++ {
		if entries[i].PositionIDStart < entries[i-1].PositionIDStart {
			t.Errorf("entry %d: position start decreased", i)
		}
	}
}

func TestBuild_WordSpansMappedBySequentialSearch(t *testing.T) {
	text := "go go go again"
	spans := []synthesize.Span{
		{Text: "go", Start: 0.0, End: 1.0},
		{Text: "go", Start: 1.0, End: 2.0},
		{Text: "go", Start: 2.0, End: 3.0},
		{Text: "again", Start: 3.0, End: 4.0},
	}
	in := Input{
		Spans:            spans,
		Granularity:      synthesize.GranularityWord,
		TextForSynthesis: text,
		RawText:          text,
		IndexMap:         identityMap(len(text)),
		CharPositions:    align.InterpolatePositions(len(text), 0, 1400),
		TotalDuration:    4.0,
		IntervalSeconds:  1.0,
	}

	entries, err := Build(in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	// Repeated words must resolve to distinct offsets: 0, 3, 6.
	wantStarts := []int{0, 3, 6, 9}
	for i, e := range entries {
		if e.CharIndexStart != wantStarts[i] {
			t.Errorf("entry %d: start %d, want %d", i, e.CharIndexStart, wantStarts[i])
		}
	}
	if entries[3].TextNormalized != "again" {
		t.Errorf("entry 3 text: got %q", entries[3].TextNormalized)
	}
}

func TestBuild_ZeroTimestampsFails(t *testing.T) {
	in := Input{
		TextForSynthesis: "text",
		CharPositions:    identityMap(4),
		TotalDuration:    10.0,
	}
	_, err := Build(in)
	if !errors.Is(err, ErrNoTimestamps) {
		t.Errorf("expected ErrNoTimestamps, got %v", err)
	}
}

func TestBuild_CharSpanContentMismatchFails(t *testing.T) {
	text := "abc"
	spans := []synthesize.Span{
		{Text: "a", Start: 0, End: 1},
		{Text: "X", Start: 1, End: 2}, // provider claims a different character
		{Text: "c", Start: 2, End: 3},
	}
	in := Input{
		Spans:            spans,
		Granularity:      synthesize.GranularityCharacter,
		TextForSynthesis: text,
		CharPositions:    identityMap(len(text)),
		TotalDuration:    3.0,
		IntervalSeconds:  1.0,
	}
	_, err := Build(in)
	if !errors.Is(err, ErrTextMismatch) {
		t.Errorf("expected ErrTextMismatch, got %v", err)
	}
}

func TestBuild_CharSpanCountMismatchFails(t *testing.T) {
	text := "abcdef"
	spans := []synthesize.Span{
		{Text: "a", Start: 0, End: 1},
		{Text: "b", Start: 1, End: 2},
	}
	in := Input{
		Spans:            spans,
		Granularity:      synthesize.GranularityCharacter,
		TextForSynthesis: text,
		CharPositions:    identityMap(len(text)),
		TotalDuration:    2.0,
	}
	_, err := Build(in)
	if !errors.Is(err, ErrTextMismatch) {
		t.Errorf("expected ErrTextMismatch, got %v", err)
	}
}

func TestBuild_WordNotInTextFails(t *testing.T) {
	in := Input{
		Spans:            []synthesize.Span{{Text: "missing", Start: 0, End: 1}},
		Granularity:      synthesize.GranularityWord,
		TextForSynthesis: "completely different",
		CharPositions:    identityMap(len("completely different")),
		TotalDuration:    1.0,
	}
	_, err := Build(in)
	if !errors.Is(err, ErrTextMismatch) {
		t.Errorf("expected ErrTextMismatch, got %v", err)
	}
}

func TestBuild_TextOriginalTracesThroughIndexMap(t *testing.T) {
	raw := "Hello\n\nworld"
	norm, indexMap := align.Normalize(raw) // "Hello world"
	in := Input{
		Spans:            charSpans(norm, 2.0),
		Granularity:      synthesize.GranularityCharacter,
		TextForSynthesis: norm,
		RawText:          raw,
		IndexMap:         indexMap,
		CharPositions:    align.InterpolatePositions(len(norm), 100, 200),
		TotalDuration:    2.0,
		IntervalSeconds:  5.0, // single entry covering everything
	}

	entries, err := Build(in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].TextNormalized != "Hello world" {
		t.Errorf("normalized text: got %q", entries[0].TextNormalized)
	}
	if entries[0].TextOriginal != "Hello\n\nworld" {
		t.Errorf("original text: got %q", entries[0].TextOriginal)
	}
}

func identityMap(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}
