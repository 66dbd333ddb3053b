package classifier

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

// Intent is the category of an incoming message.
type Intent int

const (
	IntentGreeting Intent = iota + 1
	IntentThanks
	IntentSingleQuestion
	IntentMultiQuestion
	IntentOther
)

// String returns the string representation of Intent
func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentThanks:
		return "thanks"
	case IntentSingleQuestion:
		return "single_question"
	case IntentMultiQuestion:
		return "multi_question"
	case IntentOther:
		return "other"
	default:
		return "unknown"
	}
}

// IsQuestion reports whether the intent goes through document search.
func (i Intent) IsQuestion() bool {
	return i == IntentSingleQuestion || i == IntentMultiQuestion
}

const (
	temperature = 0.5
	maxTokens   = 1000
)

var digitRe = regexp.MustCompile(`\d`)

// ParseIntent maps the first digit of a model reply to an Intent. Without a
// digit the reply is ambiguous and SingleQuestion is returned with ok=false.
// Digits outside 1..5 map to IntentOther.
func ParseIntent(raw string) (Intent, bool) {
	d := digitRe.FindString(raw)
	if d == "" {
		return IntentSingleQuestion, false
	}
	n := Intent(d[0] - '0')
	if n < IntentGreeting || n > IntentOther {
		return IntentOther, true
	}
	return n, true
}

// Classifier asks the model which category a message belongs to.
type Classifier struct {
	Provider llm.Provider
	Prompts  config.Prompts
	Model    string
	log      *logger.Logger
}

func New(p llm.Provider, prompts config.Prompts, model string, log *logger.Logger) *Classifier {
	return &Classifier{Provider: p, Prompts: prompts, Model: model, log: log.Named("classifier")}
}

// Classify returns the intent and the raw model reply. Completion failures
// are returned unchanged.
func (c *Classifier) Classify(ctx context.Context, query string) (Intent, string, error) {
	start := time.Now()
	defer metrics.ObserveStage("classification", start)

	prompt, err := c.Prompts.Render(config.PromptClassification, query)
	if err != nil {
		return 0, "", fmt.Errorf("render classification prompt: %w", err)
	}
	raw, err := c.Provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       c.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return 0, "", err
	}
	intent, ok := ParseIntent(raw)
	if !ok {
		c.log.Warnf("no category digit in classifier reply %q, using %s", raw, intent)
	}
	metrics.IncIntent(intent.String())
	c.log.Infof("query classified as %s", intent)
	return intent, raw, nil
}
