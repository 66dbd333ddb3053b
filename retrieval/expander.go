package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/metrics"
)

const (
	expandTemperature = 1.0
	expandMaxTokens   = 3000
)

var questionLabel = regexp.MustCompile(`Вопрос\d+:`)

// Expander turns one user query into a list of search queries.
type Expander struct {
	Provider llm.Provider
	Prompts  config.Prompts
	Model    string
	log      *logger.Logger
}

func NewExpander(p llm.Provider, prompts config.Prompts, model string, log *logger.Logger) *Expander {
	return &Expander{Provider: p, Prompts: prompts, Model: model, log: log.Named("expander")}
}

// Expand returns the queries to search. The original query always comes
// first; with expand off it is the only one. A completion failure is returned.
func (e *Expander) Expand(ctx context.Context, query string, expand bool) ([]string, error) {
	if !expand {
		return []string{strings.TrimSpace(query)}, nil
	}
	start := time.Now()
	defer metrics.ObserveStage("query_expansion", start)

	prompt, err := e.Prompts.Render(config.PromptQueryGeneration, query)
	if err != nil {
		return nil, fmt.Errorf("render query generation prompt: %w", err)
	}
	raw, err := e.Provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       e.Model,
		Temperature: expandTemperature,
		MaxTokens:   expandMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	queries := ParseQueries(query, raw)
	e.log.Infof("expanded query into %d search queries", len(queries))
	return queries, nil
}

// ParseQueries splits a generated reply into lines, removes "ВопросN:"
// labels and blank lines, and deduplicates by trimmed text with the original
// query first.
func ParseQueries(original, raw string) []string {
	first := strings.TrimSpace(original)
	out := []string{first}
	seen := map[string]struct{}{first: {}}
	for _, line := range strings.Split(raw, "\n") {
		q := strings.TrimSpace(questionLabel.ReplaceAllString(line, ""))
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
