package post

import (
	"context"
	"fmt"
	"time"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/metrics"
	"github.com/higress-group/expertbot/retriever"
)

const (
	analysisTemperature = 0.1
	analysisMaxTokens   = 5000
)

// Analysis is the result of the analysis stage.
type Analysis struct {
	Note  string
	Block string
	Pool  Pool
}

// Analyzer selects the best fragments and asks the model for an analysis note.
type Analyzer struct {
	Provider        llm.Provider
	Prompts         config.Prompts
	Model           string
	MaxTexts        int
	MaxPromptTokens int
	Counter         llm.TokenCounter
	log             *logger.Logger
}

func NewAnalyzer(p llm.Provider, prompts config.Prompts, model string, maxTexts int, log *logger.Logger) *Analyzer {
	return &Analyzer{Provider: p, Prompts: prompts, Model: model, MaxTexts: maxTexts, log: log.Named("analysis")}
}

// Analyze builds the fragment pool from docs and produces the note. The
// returned Analysis carries the pool and block even when the note fails.
func (a *Analyzer) Analyze(ctx context.Context, query string, docs []retriever.Document) (*Analysis, error) {
	start := time.Now()
	defer metrics.ObserveStage("analysis", start)

	pool := BuildPool(docs, a.MaxTexts)
	if fitted := pool.FitTokens(a.Counter, a.MaxPromptTokens); len(fitted) < len(pool) {
		a.log.Infof("token budget %d trimmed fragments from %d to %d", a.MaxPromptTokens, len(pool), len(fitted))
		pool = fitted
	}
	res := &Analysis{Pool: pool, Block: pool.Render()}

	prompt, err := a.Prompts.Render(config.PromptValidationPlan, query, res.Block)
	if err != nil {
		return res, fmt.Errorf("render analysis prompt: %w", err)
	}
	note, err := a.Provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       a.Model,
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return res, err
	}
	res.Note = note
	a.log.Infof("analysis note ready from %d fragments", len(pool))
	return res, nil
}
