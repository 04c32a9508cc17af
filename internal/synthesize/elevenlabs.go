package synthesize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const elevenLabsTTSEndpoint = "https://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabsClient calls the ElevenLabs text-to-speech API with character
// timestamps. Implements the Provider interface.
type ElevenLabsClient struct {
	apiKey  string
	voiceID string
	model   string // "eleven_multilingual_v2" etc.
	timeout time.Duration
	client  *http.Client
}

// elevenlabsRequest is the JSON request body for the with-timestamps endpoint.
type elevenlabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// elevenlabsResponse is the JSON response from the with-timestamps endpoint.
type elevenlabsResponse struct {
	AudioBase64 string              `json:"audio_base64"`
	Alignment   elevenlabsAlignment `json:"alignment"`
}

// elevenlabsAlignment carries parallel per-character timestamp arrays.
type elevenlabsAlignment struct {
	Characters          []string  `json:"characters"`
	CharacterStartTimes []float64 `json:"character_start_times_seconds"`
	CharacterEndTimes   []float64 `json:"character_end_times_seconds"`
}

// NewElevenLabsClient creates a new ElevenLabs TTS client.
func NewElevenLabsClient(apiKey, voiceID, model string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Voice returns the configured voice identifier.
func (el *ElevenLabsClient) Voice() string { return el.voiceID }

// Synthesize sends text to the ElevenLabs TTS API and returns audio plus
// per-character timestamps.
func (el *ElevenLabsClient) Synthesize(ctx context.Context, text string) (*Result, error) {
	reqBody, err := json.Marshal(elevenlabsRequest{Text: text, ModelID: el.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/with-timestamps?output_format=mp3_44100_128", elevenLabsTTSEndpoint, el.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	spans, duration, err := spansFromAlignment(result.Alignment)
	if err != nil {
		return nil, err
	}

	rawAlignment, err := json.Marshal(result.Alignment)
	if err != nil {
		return nil, fmt.Errorf("marshal alignment: %w", err)
	}

	return &Result{
		Audio:           audio,
		Format:          "mp3",
		DurationSeconds: duration,
		Granularity:     GranularityCharacter,
		Spans:           spans,
		RawAlignment:    rawAlignment,
	}, nil
}

// spansFromAlignment converts the parallel character arrays to Spans. The
// three arrays must be the same length.
func spansFromAlignment(a elevenlabsAlignment) ([]Span, float64, error) {
	n := len(a.Characters)
	if len(a.CharacterStartTimes) != n || len(a.CharacterEndTimes) != n {
		return nil, 0, fmt.Errorf("elevenlabs alignment arrays disagree: %d chars, %d starts, %d ends",
			n, len(a.CharacterStartTimes), len(a.CharacterEndTimes))
	}

	spans := make([]Span, n)
	var duration float64
	for i := 0; i < n; i++ {
		spans[i] = Span{
			Text:  a.Characters[i],
			Start: a.CharacterStartTimes[i],
			End:   a.CharacterEndTimes[i],
		}
		if a.CharacterEndTimes[i] > duration {
			duration = a.CharacterEndTimes[i]
		}
	}
	return spans, duration, nil
}
