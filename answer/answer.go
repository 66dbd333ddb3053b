package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/metrics"
)

const (
	temperature = 0.1
	maxTokens   = 5000
)

// Generator writes the final answer from the analysis note and fragments.
type Generator struct {
	Provider llm.Provider
	Prompts  config.Prompts
	Model    string
	log      *logger.Logger
}

func New(p llm.Provider, prompts config.Prompts, model string, log *logger.Logger) *Generator {
	return &Generator{Provider: p, Prompts: prompts, Model: model, log: log.Named("answer")}
}

// TemplateFor picks the prompt: when voting already confirmed relevance the
// plain answer template is used, otherwise the template that makes the model
// check relevance itself.
func TemplateFor(votingRan bool) string {
	if votingRan {
		return config.PromptAnswerGeneration
	}
	return config.PromptAnswerGenerationWithVoting
}

// Generate returns the model reply verbatim.
func (g *Generator) Generate(ctx context.Context, query, note, block string, votingRan bool) (string, error) {
	start := time.Now()
	defer metrics.ObserveStage("answer", start)

	name := TemplateFor(votingRan)
	prompt, err := g.Prompts.Render(name, query, note, block)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	text, err := g.Provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       g.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	g.log.Infof("answer generated with %s (%d chars)", name, len([]rune(text)))
	return text, nil
}
