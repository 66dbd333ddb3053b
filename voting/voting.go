package voting

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/metrics"
)

// Verdict is the outcome of the voting step.
type Verdict int

const (
	VerdictIrrelevant Verdict = iota
	VerdictRelevant
)

// String returns the string representation of Verdict
func (v Verdict) String() string {
	if v == VerdictRelevant {
		return "relevant"
	}
	return "irrelevant"
}

const (
	temperature = 0.2
	maxTokens   = 1000
)

// consensus is the only phrase that counts as a positive vote.
var consensus = regexp.MustCompile(`(?i)общее\s+мнение:\s+есть\s+ответ`)

// ParseVerdict reports VerdictRelevant iff the reply contains the consensus phrase.
func ParseVerdict(raw string) Verdict {
	if consensus.MatchString(raw) {
		return VerdictRelevant
	}
	return VerdictIrrelevant
}

// Voter asks the model whether the gathered material answers the query.
type Voter struct {
	Provider llm.Provider
	Prompts  config.Prompts
	Model    string
	log      *logger.Logger
}

func New(p llm.Provider, prompts config.Prompts, model string, log *logger.Logger) *Voter {
	return &Voter{Provider: p, Prompts: prompts, Model: model, log: log.Named("voting")}
}

// Vote returns the verdict and the raw model reply.
func (v *Voter) Vote(ctx context.Context, query, note, block string) (Verdict, string, error) {
	start := time.Now()
	defer metrics.ObserveStage("voting", start)

	prompt, err := v.Prompts.Render(config.PromptValidationVoting, query, note, block)
	if err != nil {
		return VerdictIrrelevant, "", fmt.Errorf("render voting prompt: %w", err)
	}
	raw, err := v.Provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       v.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return VerdictIrrelevant, "", err
	}
	verdict := ParseVerdict(raw)
	metrics.IncVerdict(verdict.String())
	v.log.Infof("voting verdict: %s", verdict)
	return verdict, raw, nil
}
