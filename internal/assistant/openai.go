package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// API selects which OpenAI endpoint family a generator calls.
type API string

const (
	// APIResponses uses the Responses API. Only OpenAI itself serves it.
	APIResponses API = "responses"
	// APIChat uses Chat Completions, which OpenAI-compatible providers
	// (including Gemini) also serve.
	APIChat API = "chat"
)

// OpenAIConfig configures OpenAIGenerator.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	API        API
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAIGenerator generates replies through the OpenAI SDK.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	api    API
}

// NewOpenAIGenerator builds a generator. When cfg.API is empty, a custom base
// URL selects Chat Completions and the default endpoint selects Responses.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	api := cfg.API
	if api == "" {
		api = APIResponses
		if cfg.BaseURL != "" {
			api = APIChat
		}
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		api:    api,
	}
}

// Generate sends prompt as a single user turn.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var (
		text string
		err  error
	)
	switch g.api {
	case APIChat:
		text, err = g.chat(ctx, prompt)
	default:
		text, err = g.respond(ctx, prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (g *OpenAIGenerator) chat(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) respond(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: g.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("response: %w", err)
	}
	return resp.OutputText(), nil
}
