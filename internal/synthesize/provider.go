package synthesize

import "context"

// Granularity describes the timestamp resolution a provider returns.
type Granularity string

const (
	GranularityCharacter Granularity = "character"
	GranularityWord      Granularity = "word"
)

// Provider is the interface for text-to-speech backends.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*Result, error)
	Name() string  // "elevenlabs", "polly"
	Voice() string // voice identifier for logs/metadata
}

// Result is the common synthesis result from any provider. Spans are
// ordered by start time; each covers one character or one word of the
// input text depending on the provider's granularity.
type Result struct {
	Audio           []byte
	Format          string // file extension: "mp3"
	DurationSeconds float64
	Granularity     Granularity
	Spans           []Span
	RawAlignment    []byte // provider's timestamp payload, dumped as-is
}

// Span is a timestamped slice of the synthesized text.
type Span struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}
