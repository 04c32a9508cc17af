// Package rewrite adapts extracted book text for narration before
// synthesis: smoothing OCR artifacts, expanding abbreviations, and dropping
// layout debris that reads badly aloud.
package rewrite

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const systemPrompt = `You are preparing book text for audio narration. Rewrite the user's text so it reads naturally when spoken aloud: fix OCR artifacts and broken hyphenation, expand abbreviations and numerals where natural, and remove page headers, footers, and other layout debris. Preserve the meaning, order, and approximate length of the text. Return only the rewritten text with no commentary.`

// Rewriter is the interface for narration rewrite backends.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
	Name() string
}

// OpenAIRewriter rewrites text through an OpenAI chat completion.
type OpenAIRewriter struct {
	client oai.Client
	model  string
}

// NewOpenAIRewriter creates a narration rewriter backed by the OpenAI API.
func NewOpenAIRewriter(apiKey, model string, timeout time.Duration) (*OpenAIRewriter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai rewriter: api key must not be empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIRewriter{
		client: oai.NewClient(opts...),
		model:  model,
	}, nil
}

// Name returns the rewriter name used in artifact paths.
func (r *OpenAIRewriter) Name() string { return "openai" }

// Rewrite sends the text through a chat completion with the narration
// prompt and returns the rewritten text.
func (r *OpenAIRewriter) Rewrite(ctx context.Context, text string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(r.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion returned no choices")
	}

	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rewritten == "" {
		return "", fmt.Errorf("openai completion returned empty text")
	}
	return rewritten, nil
}
