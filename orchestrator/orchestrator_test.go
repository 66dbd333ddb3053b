package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/higress-group/expertbot/answer"
	"github.com/higress-group/expertbot/classifier"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/llm/llmtest"
	"github.com/higress-group/expertbot/post"
	"github.com/higress-group/expertbot/retrieval"
	"github.com/higress-group/expertbot/retriever"
	"github.com/higress-group/expertbot/voting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fallback = "НЕТ ОТВЕТА"

	matchClassify = "Классифицируй"
	matchExpand   = "Сформулируй от 3 до 5"
	matchAnalysis = "Составь аналитическую записку"
	matchVoting   = "Собрали 3х"
	matchAnswer   = "Эксперты подтвердили"
	matchAnswerNV = "напиши только"
)

type searchClient struct {
	docs map[string][]retriever.Document
	errs map[string]error
}

func (s *searchClient) Type() string { return "scripted" }

func (s *searchClient) Search(_ context.Context, req retriever.Request) ([]retriever.Document, error) {
	if err := s.errs[req.Query]; err != nil {
		return nil, err
	}
	return s.docs[req.Query], nil
}

type savedRun struct {
	snapshot map[string]any
	meta     map[string]any
}

type captureSaver struct {
	mu   sync.Mutex
	runs []savedRun
}

func (c *captureSaver) Save(_ context.Context, snapshot, meta map[string]any) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, savedRun{snapshot: snapshot, meta: meta})
	return "record-" + meta["run_id"].(string)
}

func (c *captureSaver) last(t *testing.T) savedRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.runs)
	return c.runs[len(c.runs)-1]
}

func fragmentDoc(title string, scores ...float64) retriever.Document {
	d := retriever.Document{Title: title, Link: "https://1gl.ru/?#/document/99/" + title + "/"}
	for _, s := range scores {
		d.Fragments = append(d.Fragments, retriever.Fragment{Text: "текст " + title, Score: s})
	}
	return d
}

func newTestOrchestrator(p llm.Provider, c retriever.Client, saver *captureSaver, opts Options) *Orchestrator {
	log := logger.Nop()
	prompts := config.DefaultPrompts()
	if opts.FallbackAnswer == "" {
		opts.FallbackAnswer = fallback
	}
	return New(
		retrieval.NewExpander(p, prompts, "gen", log),
		retrieval.NewAggregator(c, time.Second, 0, log),
		post.NewAnalyzer(p, prompts, "analysis", 30, log),
		voting.New(p, prompts, "voting", log),
		answer.New(p, prompts, "answer", log),
		saver,
		opts,
		log,
	)
}

func TestRunEmptyPoolAnswersWithFallback(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{
		{Match: matchExpand, Response: "Вопрос1: ставка НДС"},
	}}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, &searchClient{}, saver, Options{ExpandQueries: true, Voting: true})

	res, err := o.Run(context.Background(), "Какая ставка НДС?", "bss")
	require.NoError(t, err)
	assert.Equal(t, fallback, res.Answer)
	assert.True(t, res.Fallback)
	assert.Equal(t, 0, p.CallsMatching(matchAnalysis))
	assert.Equal(t, 0, p.CallsMatching(matchVoting))
	assert.Equal(t, 0, p.CallsMatching(matchAnswer)+p.CallsMatching(matchAnswerNV))

	run := saver.last(t)
	assert.Equal(t, fallback, run.snapshot["answer"])
	assert.Equal(t, []string{"Какая ставка НДС?", "ставка НДС"}, run.snapshot["temp_queries"])
	assert.Equal(t, "searching", run.meta["last_stage"])
	assert.Equal(t, "record-"+res.RunID, res.Record)
}

func TestRunVotingRejectsSkipsAnswer(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{
		{Match: matchVoting, Response: "Эксперт 1: нет\nОбщее мнение: НЕТ ответа"},
		{Match: matchAnalysis, Response: "записка"},
	}}
	c := &searchClient{docs: map[string][]retriever.Document{
		"Как учесть расходы?": {fragmentDoc("a", 0.9)},
	}}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, c, saver, Options{Voting: true})

	res, err := o.Run(context.Background(), "Как учесть расходы?", "bss")
	require.NoError(t, err)
	assert.Equal(t, fallback, res.Answer)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, p.CallsMatching(matchVoting))
	assert.Equal(t, 0, p.CallsMatching(matchAnswer)+p.CallsMatching(matchAnswerNV))
	assert.Equal(t, 0, p.CallsMatching(matchExpand))

	run := saver.last(t)
	assert.Equal(t, false, run.snapshot["voting"])
	assert.Equal(t, "записка", run.snapshot["analysis_note"])
	assert.Equal(t, 1, run.snapshot["count"])
}

func TestRunCompletesWhenOneBranchFails(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{
		{Match: matchVoting, Response: "Общее мнение: есть ответ"},
		{Match: matchAnswer, Response: "Расходы учитываются по дате акта."},
		{Match: matchAnalysis, Response: "записка"},
		{Match: matchExpand, Response: "Вопрос1: дата признания расходов"},
	}}
	c := &searchClient{
		docs: map[string][]retriever.Document{
			"Как учесть расходы?": {fragmentDoc("a", 0.4), fragmentDoc("b", 0.95)},
		},
		errs: map[string]error{
			"дата признания расходов": &retriever.StatusError{Backend: "scripted", StatusCode: 404},
		},
	}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, c, saver, Options{ExpandQueries: true, Voting: true, AnswerModel: "answer"})

	res, err := o.Run(context.Background(), "Как учесть расходы?", "bss")
	require.NoError(t, err)
	assert.Equal(t, "Расходы учитываются по дате акта.", res.Answer)
	assert.False(t, res.Fallback)
	assert.Equal(t, StageRecorded, res.State.Stage)
	assert.Equal(t, 0, p.CallsMatching(matchAnswerNV))

	run := saver.last(t)
	assert.Equal(t, true, run.snapshot["voting"])
	assert.Equal(t, 2, run.snapshot["count"])
	assert.Equal(t, "answer", run.meta["model_answer_generator"])
	assert.Equal(t, 1, run.meta["failed_branches"])
	assert.Equal(t, "answered", run.meta["last_stage"])

	block := run.snapshot["best_fragments"].(string)
	assert.Less(t, strings.Index(block, "/document/99/b/"), strings.Index(block, "/document/99/a/"))
}

func TestRunWithoutVotingUsesGuardedTemplate(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{
		{Match: matchAnswerNV, Response: fallback},
		{Match: matchAnalysis, Response: "записка"},
	}}
	c := &searchClient{docs: map[string][]retriever.Document{"вопрос": {fragmentDoc("a", 0.5)}}}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, c, saver, Options{})

	res, err := o.Run(context.Background(), "вопрос", "bss")
	require.NoError(t, err)
	assert.Equal(t, fallback, res.Answer)
	assert.True(t, res.Fallback)
	assert.Equal(t, 0, p.CallsMatching(matchVoting))
	assert.Equal(t, 1, p.CallsMatching(matchAnswerNV))
	assert.Equal(t, true, saver.last(t).snapshot["voting"])
}

func TestRunGenerationErrorIsRecorded(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{
		{Match: matchAnalysis, Err: errors.New("upstream 503")},
	}}
	c := &searchClient{docs: map[string][]retriever.Document{"вопрос": {fragmentDoc("a", 0.5)}}}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, c, saver, Options{Voting: true})

	res, err := o.Run(context.Background(), "вопрос", "bss")
	require.Error(t, err)
	var ge *llm.GenerationError
	assert.True(t, errors.As(err, &ge))
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Record)

	run := saver.last(t)
	assert.Contains(t, run.meta["error"], "upstream 503")
	assert.Equal(t, "searching", run.meta["last_stage"])
	assert.NotEmpty(t, run.snapshot["best_fragments"])
	assert.Equal(t, 0, p.CallsMatching(matchVoting))
}

func TestRunStatesAreIndependent(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{
		{Match: matchAnswerNV, Response: "ответ"},
		{Match: matchAnalysis, Response: "записка"},
	}}
	c := &searchClient{docs: map[string][]retriever.Document{
		"q1": {fragmentDoc("a", 0.5)},
		"q2": {fragmentDoc("b", 0.5)},
	}}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, c, saver, Options{})

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i, q := range []string{"q1", "q2"} {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			res, err := o.Run(context.Background(), q, "bss")
			assert.NoError(t, err)
			results[i] = res
		}(i, q)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, "q1", results[0].State.Query)
	assert.Equal(t, "q2", results[1].State.Query)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	assert.Contains(t, results[0].State.BestFragments, "/a/")
	assert.Contains(t, results[1].State.BestFragments, "/b/")
}

func TestBotGate(t *testing.T) {
	replies := config.Default().Pipeline.Replies
	tests := []struct {
		name     string
		reply    string
		expected string
		intent   classifier.Intent
		runs     int
	}{
		{name: "greeting", reply: "1", expected: replies.Greeting, intent: classifier.IntentGreeting},
		{name: "thanks", reply: "2.", expected: replies.Thanks, intent: classifier.IntentThanks},
		{name: "other", reply: "5", expected: replies.Unknown, intent: classifier.IntentOther},
		{name: "out of range digit", reply: "7", expected: replies.Unknown, intent: classifier.IntentOther},
		{name: "single question", reply: "3", expected: "ответ", intent: classifier.IntentSingleQuestion, runs: 1},
		{name: "multiple questions", reply: "4", expected: "ответ", intent: classifier.IntentMultiQuestion, runs: 1},
		{name: "no digit", reply: "вопрос", expected: "ответ", intent: classifier.IntentSingleQuestion, runs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &llmtest.Provider{Rules: []llmtest.Rule{
				{Match: matchClassify, Response: tt.reply},
				{Match: matchAnswerNV, Response: "ответ"},
				{Match: matchAnalysis, Response: "записка"},
			}}
			c := &searchClient{docs: map[string][]retriever.Document{"Здравствуйте": {fragmentDoc("a", 0.5)}}}
			saver := &captureSaver{}
			o := newTestOrchestrator(p, c, saver, Options{})
			bot := NewBot(classifier.New(p, config.DefaultPrompts(), "cls", logger.Nop()), o, replies, logger.Nop())

			reply, err := bot.Answer(context.Background(), "Здравствуйте", "bss")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, reply.Answer)
			assert.Equal(t, tt.intent, reply.Intent)
			assert.Len(t, saver.runs, tt.runs)
			if tt.runs == 0 {
				assert.Empty(t, reply.RunID)
				assert.Equal(t, 1, len(p.Calls()))
			}
		})
	}
}

func TestBotClassifierError(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{{Match: matchClassify, Err: errors.New("timeout")}}}
	saver := &captureSaver{}
	o := newTestOrchestrator(p, &searchClient{}, saver, Options{})
	bot := NewBot(classifier.New(p, config.DefaultPrompts(), "cls", logger.Nop()), o, config.RepliesConfig{}, logger.Nop())

	_, err := bot.Answer(context.Background(), "вопрос", "bss")
	require.Error(t, err)
	assert.Empty(t, saver.runs)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "idle", StageIdle.String())
	assert.Equal(t, "voted", StageVoted.String())
	assert.Equal(t, "recorded", StageRecorded.String())
	assert.Equal(t, "unknown", Stage(42).String())
}
