// Package fetch retrieves book content at a reading position from the
// remote renderer, through its companion proxy. The renderer protocol and
// its binary payload format stay opaque here: the proxy hands back the
// covered position span plus the raw payload, and the pipeline stores the
// payload as-is for the extraction stage.
package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnauthorized signals that the renderer rejected the session token.
// Clients surface this as a token-refresh prompt rather than a retry.
var ErrUnauthorized = errors.New("renderer rejected session token")

// Chunk is fetched book content covering a position span.
type Chunk struct {
	StartPositionID int
	EndPositionID   int
	Payload         []byte // opaque renderer payload (tar)
}

// Fetcher is the interface for remote content retrieval.
type Fetcher interface {
	FetchChunk(ctx context.Context, asin string, startPos int) (*Chunk, error)
}

// TokenSource supplies the current renderer session token.
type TokenSource interface {
	Token() (string, error)
}

// RendererClient fetches chunks from the renderer proxy.
type RendererClient struct {
	baseURL   string
	pageCount int
	tokens    TokenSource
	client    *http.Client
}

// rendererRequest is the JSON request body for the proxy's render endpoint.
type rendererRequest struct {
	ASIN          string `json:"asin"`
	StartPosition int    `json:"start_position"`
	PageCount     int    `json:"page_count"`
}

// rendererResponse is the proxy's JSON envelope around the raw payload.
type rendererResponse struct {
	ASIN          string `json:"asin"`
	StartPosition int    `json:"start_position"`
	EndPosition   int    `json:"end_position"`
	Payload       string `json:"payload"` // base64 tar
}

// NewRendererClient creates a renderer proxy client. pageCount controls how
// many pages each fetch requests.
func NewRendererClient(baseURL string, pageCount int, tokens TokenSource, timeout time.Duration) *RendererClient {
	return &RendererClient{
		baseURL:   baseURL,
		pageCount: pageCount,
		tokens:    tokens,
		client:    &http.Client{Timeout: timeout},
	}
}

// FetchChunk requests rendered content starting at startPos and returns the
// covered span with the opaque payload.
func (c *RendererClient) FetchChunk(ctx context.Context, asin string, startPos int) (*Chunk, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}

	reqBody, err := json.Marshal(rendererRequest{
		ASIN:          asin,
		StartPosition: startPos,
		PageCount:     c.pageCount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("renderer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("renderer error (status %d): %s", resp.StatusCode, truncate(body, 200))
	}

	var result rendererResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.EndPosition <= result.StartPosition {
		return nil, fmt.Errorf("renderer returned invalid span %d-%d", result.StartPosition, result.EndPosition)
	}

	payload, err := base64.StdEncoding.DecodeString(result.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("renderer returned empty payload for %s@%d", asin, startPos)
	}

	return &Chunk{
		StartPositionID: result.StartPosition,
		EndPositionID:   result.EndPosition,
		Payload:         payload,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
