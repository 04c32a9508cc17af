package synthesize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// PollyClient calls Amazon Polly. Polly returns word-level speech marks
// rather than character timestamps, so spans carry whole words.
// Implements the Provider interface.
type PollyClient struct {
	client *polly.Client
	voice  string
}

// pollySpeechMark is one line of Polly's newline-delimited JSON speech
// marks output. Time is in milliseconds; Start/End are byte offsets into
// the input text.
type pollySpeechMark struct {
	Time  int    `json:"time"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Value string `json:"value"`
}

// NewPollyClient creates an Amazon Polly TTS client. Static credentials are
// optional; when absent the default AWS credential chain applies.
func NewPollyClient(ctx context.Context, region, accessKey, secretKey, voice string) (*PollyClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &PollyClient{client: polly.NewFromConfig(cfg), voice: voice}, nil
}

// Name returns the provider name.
func (p *PollyClient) Name() string { return "polly" }

// Voice returns the configured voice identifier.
func (p *PollyClient) Voice() string { return p.voice }

// Synthesize runs two Polly calls: one for the mp3 audio and one for the
// word speech marks, then converts the marks to spans.
func (p *PollyClient) Synthesize(ctx context.Context, text string) (*Result, error) {
	audioOut, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(p.voice),
		Engine:       types.EngineNeural,
	})
	if err != nil {
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	defer audioOut.AudioStream.Close()

	audio, err := io.ReadAll(audioOut.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}

	marksOut, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat:    types.OutputFormatJson,
		SpeechMarkTypes: []types.SpeechMarkType{types.SpeechMarkTypeWord},
		Text:            aws.String(text),
		VoiceId:         types.VoiceId(p.voice),
		Engine:          types.EngineNeural,
	})
	if err != nil {
		return nil, fmt.Errorf("polly speech marks: %w", err)
	}
	defer marksOut.AudioStream.Close()

	rawMarks, err := io.ReadAll(marksOut.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read speech marks: %w", err)
	}

	spans, duration, err := spansFromSpeechMarks(rawMarks)
	if err != nil {
		return nil, err
	}

	return &Result{
		Audio:           audio,
		Format:          "mp3",
		DurationSeconds: duration,
		Granularity:     GranularityWord,
		Spans:           spans,
		RawAlignment:    rawMarks,
	}, nil
}

// spansFromSpeechMarks parses Polly's ndjson word marks into spans. Each
// mark only carries its start time, so a word's end is the next word's
// start; the last word's end is estimated from the mean word duration.
func spansFromSpeechMarks(raw []byte) ([]Span, float64, error) {
	var marks []pollySpeechMark
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var m pollySpeechMark
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, 0, fmt.Errorf("parse speech mark %q: %w", string(line), err)
		}
		if m.Type == "word" {
			marks = append(marks, m)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan speech marks: %w", err)
	}
	if len(marks) == 0 {
		return nil, 0, nil
	}

	spans := make([]Span, len(marks))
	for i, m := range marks {
		spans[i] = Span{Text: m.Value, Start: float64(m.Time) / 1000.0}
	}
	for i := 0; i < len(spans)-1; i++ {
		spans[i].End = spans[i+1].Start
	}

	last := len(spans) - 1
	tail := 0.4
	if last > 0 {
		tail = (spans[last].Start - spans[0].Start) / float64(last)
	}
	spans[last].End = spans[last].Start + tail

	return spans, spans[last].End, nil
}
