package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Client runs reasoning tasks against a model. Run returns an error only
// for transport-level failure; malformed model output surfaces as an
// UnparseableResult.
type Client interface {
	Run(ctx context.Context, task Task) (Result, error)
	Close() error
}

// OpenAIConfig configures the OpenAI-backed client. BaseURL may point at
// any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// OpenAIClient is the transport to an OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIClient builds the client. Model defaults to gpt-4o-mini.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes one task and parses the response for its kind.
func (c *OpenAIClient) Run(ctx context.Context, task Task) (Result, error) {
	system := systemPrompt(task.Kind())
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encoding %s task: %w", task.Kind(), err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s task: %w", task.Kind(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s task: empty completion", task.Kind())
	}

	content := resp.Choices[0].Message.Content
	result := ParseResult(task.Kind(), content)
	if u, ok := result.(UnparseableResult); ok {
		c.logger.Warn("unparseable model output",
			slog.String("task_kind", string(task.Kind())),
			slog.String("reason", u.Reason))
	}
	return result, nil
}

// Close implements Client. The underlying HTTP client needs no teardown.
func (c *OpenAIClient) Close() error { return nil }
