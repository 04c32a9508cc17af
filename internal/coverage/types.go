package coverage

import (
	"fmt"
	"time"
)

// CoverageRange is one processed segment of a book: a contiguous span of
// reading positions for which content has been fetched and processed.
type CoverageRange struct {
	ID              string    `json:"id"`
	StartPositionID int       `json:"start_position_id"`
	EndPositionID   int       `json:"end_position_id"`

	// Artifact paths, relative to the data directory. Empty until the
	// corresponding stage has produced its output.
	RawPath        string            `json:"raw_path,omitempty"`
	TextPath       string            `json:"text_path,omitempty"`
	RewrittenPaths map[string]string `json:"rewritten_paths,omitempty"` // keyed by rewriter name

	Audio []AudioArtifact `json:"audio,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AudioArtifact is one synthesis result for a (range, provider) pair.
// The covered sub-span may be narrower than the parent range when synthesis
// input was truncated at a sentence boundary.
type AudioArtifact struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	AudioPath       string    `json:"audio_path"`
	AlignmentPath   string    `json:"alignment_path"`
	BenchmarksPath  string    `json:"benchmarks_path"`
	SourceTextPath  string    `json:"source_text_path"`
	StartPositionID int       `json:"start_position_id"`
	EndPositionID   int       `json:"end_position_id"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// BookCoverage is the per-book metadata root, persisted as coverage.json.
type BookCoverage struct {
	ASIN      string          `json:"asin"`
	UpdatedAt time.Time       `json:"updated_at"`
	Ranges    []CoverageRange `json:"ranges"` // ordered by start position
}

// BenchmarkEntry is one row of the time-to-position lookup table. Char
// indices are offsets into the exact text sent to the synthesizer; position
// IDs are interpolated reading-position coordinates.
type BenchmarkEntry struct {
	TimeSeconds     float64 `json:"time_seconds"`
	CharIndexStart  int     `json:"char_index_start"`
	CharIndexEnd    int     `json:"char_index_end"`
	PositionIDStart int     `json:"position_id_start"`
	PositionIDEnd   int     `json:"position_id_end"`
	TextNormalized  string  `json:"text_normalized"`
	TextOriginal    string  `json:"text_original"`
}

// BenchmarkFile is the on-disk shape of a benchmarks.json artifact.
type BenchmarkFile struct {
	TotalDurationSeconds float64          `json:"total_duration_seconds"`
	IntervalSeconds      float64          `json:"benchmark_interval_seconds"`
	Benchmarks           []BenchmarkEntry `json:"benchmarks"`
}

// ChunkID derives the deterministic range identifier from its position span.
func ChunkID(startPos, endPos int) string {
	return fmt.Sprintf("%d-%d", startPos, endPos)
}

// ArtifactID derives the audio artifact identifier from provider and the
// actually covered sub-span.
func ArtifactID(provider string, startPos, endPos int) string {
	return fmt.Sprintf("%s_%d-%d", provider, startPos, endPos)
}

// FindRange returns the range with the given ID, or nil.
func (bc *BookCoverage) FindRange(chunkID string) *CoverageRange {
	for i := range bc.Ranges {
		if bc.Ranges[i].ID == chunkID {
			return &bc.Ranges[i]
		}
	}
	return nil
}

// FindAudio returns the audio artifact with the given ID within a range, or nil.
func (r *CoverageRange) FindAudio(artifactID string) *AudioArtifact {
	for i := range r.Audio {
		if r.Audio[i].ID == artifactID {
			return &r.Audio[i]
		}
	}
	return nil
}
