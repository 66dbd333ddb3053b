package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/metrics"
	"github.com/higress-group/expertbot/post"
	"github.com/higress-group/expertbot/recorder"
	"github.com/higress-group/expertbot/retrieval"
	"github.com/higress-group/expertbot/retriever"
	"github.com/higress-group/expertbot/voting"
)

// QueryExpander produces the search queries of a run.
type QueryExpander interface {
	Expand(ctx context.Context, query string, expand bool) ([]string, error)
}

// CandidateGatherer runs the retrieval fan-out.
type CandidateGatherer interface {
	Gather(ctx context.Context, queries []string, alias string) retrieval.Result
}

// Analyzer builds the fragment pool and analysis note.
type Analyzer interface {
	Analyze(ctx context.Context, query string, docs []retriever.Document) (*post.Analysis, error)
}

// Voter decides whether the material answers the query.
type Voter interface {
	Vote(ctx context.Context, query, note, block string) (voting.Verdict, string, error)
}

// AnswerGenerator writes the final answer.
type AnswerGenerator interface {
	Generate(ctx context.Context, query, note, block string, votingRan bool) (string, error)
}

// Options are the pipeline switches.
type Options struct {
	ExpandQueries  bool
	Voting         bool
	FallbackAnswer string
	// AnswerModel is stored in every run record.
	AnswerModel string
}

// Result is what a run hands back to its caller.
type Result struct {
	RunID    string
	Record   string
	Answer   string
	Fallback bool
	State    *RunState
}

// Orchestrator wires the search pipeline stages. It holds no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	Expander QueryExpander
	Gatherer CandidateGatherer
	Analyzer Analyzer
	Voter    Voter
	Answerer AnswerGenerator
	Recorder recorder.Saver
	Opts     Options
	log      *logger.Logger
}

func New(e QueryExpander, g CandidateGatherer, a Analyzer, v Voter, ans AnswerGenerator, rec recorder.Saver, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		Expander: e, Gatherer: g, Analyzer: a, Voter: v, Answerer: ans, Recorder: rec,
		Opts: opts, log: log.Named("orchestrator"),
	}
}

// Run executes one query end to end. The run is always recorded, including
// runs that end with the fallback sentinel or a generation error. A
// generation error is returned after the record is written.
func (o *Orchestrator) Run(ctx context.Context, query, alias string) (*Result, error) {
	runID := uuid.NewString()
	log := o.log.With("run_id", runID)
	state := newRunState(query, alias, o.Opts.FallbackAnswer)
	m := metrics.NewRunMetrics(runID, query, alias)
	m.VotingEnabled = o.Opts.Voting

	err := o.run(ctx, state, m, log)
	m.Finish(err)
	defer m.Log(log)

	meta := map[string]any{
		"run_id":                 runID,
		"model_answer_generator": o.Opts.AnswerModel,
		"latency_ms":             m.TotalLatencyMs,
		"failed_branches":        m.FailedBranches,
	}
	if err != nil {
		meta["error"] = err.Error()
	}
	last := state.Stage
	state.Stage = StageRecorded
	meta["last_stage"] = last.String()

	res := &Result{RunID: runID, Answer: state.Answer, State: state}
	if o.Recorder != nil {
		res.Record = o.Recorder.Save(context.WithoutCancel(ctx), state.Snapshot(), meta)
	}
	if err != nil {
		log.Errorf("run failed at %s: %v", last, err)
		return res, err
	}
	res.Fallback = state.Answer == o.Opts.FallbackAnswer
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, state *RunState, m *metrics.RunMetrics, log *logger.Logger) error {
	// Searching
	state.Stage = StageSearching
	start := time.Now()
	queries, err := o.Expander.Expand(ctx, state.Query, o.Opts.ExpandQueries)
	if err != nil {
		return err
	}
	state.TempQueries = queries
	gathered := o.Gatherer.Gather(ctx, queries, state.Alias)
	state.Candidates = gathered.Documents
	m.Stage("searching", start)
	m.ExpandedQueries = len(queries)
	m.Branches = gathered.Branches
	m.FailedBranches = gathered.Failed
	m.Candidates = len(gathered.Documents)

	if fragmentCount(state.Candidates) == 0 {
		log.Warnf("no candidates for %d queries, answering with fallback", len(queries))
		state.Answer = o.Opts.FallbackAnswer
		m.RecordFallback("empty_pool")
		return nil
	}

	// Analyzed
	start = time.Now()
	analysis, err := o.Analyzer.Analyze(ctx, state.Query, state.Candidates)
	if analysis != nil {
		state.BestFragments = analysis.Block
		state.Count = len(analysis.Pool)
		m.Fragments = len(analysis.Pool)
	}
	if err != nil {
		return err
	}
	state.AnalysisNote = analysis.Note
	state.Stage = StageAnalyzed
	m.Stage("analysis", start)

	// Voted
	if o.Opts.Voting {
		start = time.Now()
		verdict, raw, err := o.Voter.Vote(ctx, state.Query, state.AnalysisNote, state.BestFragments)
		if err != nil {
			return err
		}
		state.Voting = verdict == voting.VerdictRelevant
		state.VotingReply = raw
		m.Verdict = verdict.String()
		m.Stage("voting", start)
	} else {
		state.Voting = true
	}
	state.Stage = StageVoted

	if !state.Voting {
		log.Infof("voting rejected the material, answering with fallback")
		state.Answer = o.Opts.FallbackAnswer
		m.RecordFallback("voting_rejected")
		return nil
	}

	// Answered
	start = time.Now()
	answer, err := o.Answerer.Generate(ctx, state.Query, state.AnalysisNote, state.BestFragments, o.Opts.Voting)
	if err != nil {
		return err
	}
	state.Answer = answer
	state.Stage = StageAnswered
	m.Stage("answer", start)
	if strings.TrimSpace(answer) == o.Opts.FallbackAnswer {
		m.RecordFallback("model_declined")
	}
	return nil
}
