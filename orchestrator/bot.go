package orchestrator

import (
	"context"

	"github.com/higress-group/expertbot/classifier"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
)

// IntentClassifier assigns an intent to an incoming message.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) (classifier.Intent, string, error)
}

// Runner executes the search pipeline for a question.
type Runner interface {
	Run(ctx context.Context, query, alias string) (*Result, error)
}

// Reply is the answer returned to a user together with how it was produced.
type Reply struct {
	Answer   string
	Intent   classifier.Intent
	Fallback bool
	RunID    string
	Record   string
}

// Bot gates the pipeline behind intent classification. Greetings, thanks and
// unrecognized messages get canned replies and are not recorded.
type Bot struct {
	Classifier IntentClassifier
	Runner     Runner
	Replies    config.RepliesConfig
	log        *logger.Logger
}

func NewBot(c IntentClassifier, r Runner, replies config.RepliesConfig, log *logger.Logger) *Bot {
	return &Bot{Classifier: c, Runner: r, Replies: replies, log: log.Named("bot")}
}

// Answer classifies query and either replies directly or runs the pipeline.
func (b *Bot) Answer(ctx context.Context, query, alias string) (*Reply, error) {
	intent, raw, err := b.Classifier.Classify(ctx, query)
	if err != nil {
		return nil, err
	}
	b.log.Debugf("query classified as %s (raw %q)", intent, raw)

	switch intent {
	case classifier.IntentGreeting:
		return &Reply{Answer: b.Replies.Greeting, Intent: intent}, nil
	case classifier.IntentThanks:
		return &Reply{Answer: b.Replies.Thanks, Intent: intent}, nil
	case classifier.IntentSingleQuestion, classifier.IntentMultiQuestion:
	default:
		return &Reply{Answer: b.Replies.Unknown, Intent: intent}, nil
	}

	res, err := b.Runner.Run(ctx, query, alias)
	if err != nil {
		return nil, err
	}
	return &Reply{
		Answer:   res.Answer,
		Intent:   intent,
		Fallback: res.Fallback,
		RunID:    res.RunID,
		Record:   res.Record,
	}, nil
}
