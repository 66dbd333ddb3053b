package expertbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/higress-group/expertbot/answer"
	"github.com/higress-group/expertbot/classifier"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/orchestrator"
	"github.com/higress-group/expertbot/post"
	"github.com/higress-group/expertbot/recorder"
	"github.com/higress-group/expertbot/retrieval"
	"github.com/higress-group/expertbot/retriever"
	"github.com/higress-group/expertbot/voting"
)

const Version = "1.0.0"

// ErrEmptyQuery is returned when a request carries no question text.
var ErrEmptyQuery = errors.New("query is empty")

// ExpertClient owns the configured pipeline and answers questions with it.
type ExpertClient struct {
	config    *config.Config
	log       *logger.Logger
	retriever retriever.Client
	recorder  *recorder.Recorder
	bot       *orchestrator.Bot
}

// NewExpertClient builds every component from configuration.
func NewExpertClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*ExpertClient, error) {
	prompts, err := config.LoadPrompts(cfg.Prompts.File)
	if err != nil {
		return nil, fmt.Errorf("load prompts failed, err: %w", err)
	}
	provider := llm.NewOpenAIProvider(cfg.LLM, log)

	ret, err := retriever.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create retriever failed, err: %w", err)
	}
	rec, err := recorder.NewFromConfig(cfg.Recorder, log)
	if err != nil {
		return nil, fmt.Errorf("create recorder failed, err: %w", err)
	}
	return NewExpertClientWith(cfg, prompts, provider, ret, rec, log), nil
}

// NewExpertClientWith wires the pipeline around already constructed
// provider, retriever and recorder.
func NewExpertClientWith(cfg *config.Config, prompts config.Prompts, provider llm.Provider, ret retriever.Client, rec *recorder.Recorder, log *logger.Logger) *ExpertClient {
	pc := cfg.Pipeline

	analyzer := post.NewAnalyzer(provider, prompts, cfg.Models.Analysis, pc.MaxTexts, log)
	if pc.MaxPromptTokens > 0 {
		counter, err := llm.NewTiktokenCounter(pc.TokenizerModel)
		if err != nil {
			log.Warnf("tokenizer unavailable, prompt token budget disabled: %v", err)
		} else {
			analyzer.Counter = counter
			analyzer.MaxPromptTokens = pc.MaxPromptTokens
		}
	}

	var saver recorder.Saver
	if rec != nil {
		saver = rec
	}
	orch := orchestrator.New(
		retrieval.NewExpander(provider, prompts, cfg.Models.QueryGeneration, log),
		retrieval.NewAggregator(ret, time.Duration(cfg.Retrieval.TimeoutMs)*time.Millisecond, cfg.Retrieval.MaxFanout, log),
		analyzer,
		voting.New(provider, prompts, cfg.Models.Voting, log),
		answer.New(provider, prompts, cfg.Models.Answer, log),
		saver,
		orchestrator.Options{
			ExpandQueries:  pc.ExpandQueries,
			Voting:         pc.Voting,
			FallbackAnswer: pc.FallbackAnswer,
			AnswerModel:    cfg.Models.Answer,
		},
		log,
	)
	bot := orchestrator.NewBot(classifier.New(provider, prompts, cfg.Models.Classifier, log), orch, pc.Replies, log)

	return &ExpertClient{
		config:    cfg,
		log:       log,
		retriever: ret,
		recorder:  rec,
		bot:       bot,
	}
}

// Ask answers a user message, running the search pipeline when the message
// is a question.
func (c *ExpertClient) Ask(ctx context.Context, query, alias string) (*orchestrator.Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return c.bot.Answer(ctx, query, alias)
}

// IsNoAnswer reports whether a reply text must be treated as "no answer".
func (c *ExpertClient) IsNoAnswer(text string) bool {
	return text == "" || text == c.config.Pipeline.FallbackAnswer
}

// RetrieverType names the configured search backend.
func (c *ExpertClient) RetrieverType() string { return c.retriever.Type() }

// Config returns the configuration the client was built with.
func (c *ExpertClient) Config() *config.Config { return c.config }

// Close releases recorder connections.
func (c *ExpertClient) Close() error {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.Close()
}
