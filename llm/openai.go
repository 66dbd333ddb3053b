package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider talks to any OpenAI compatible chat completions endpoint.
type OpenAIProvider struct {
	client openai.Client
	log    *logger.Logger
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg config.LLMConfig, log *logger.Logger, extra ...option.RequestOption) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutMs > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond))
	}
	opts = append(opts, extra...)
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		log:    log.Named("llm"),
	}
}

// Generate sends the prompt as a single user message.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			p.log.Warnf("completion rejected: model=%s status=%d", req.Model, apiErr.StatusCode)
		}
		return "", &GenerationError{Model: req.Model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Model: req.Model, Err: fmt.Errorf("empty choices in response %s", resp.ID)}
	}
	text := resp.Choices[0].Message.Content
	p.log.Debugf("completion done: model=%s prompt_chars=%d answer_chars=%d latency=%s",
		req.Model, len([]rune(req.Prompt)), len([]rune(text)), time.Since(start))
	return text, nil
}
