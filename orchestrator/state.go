package orchestrator

import (
	"github.com/higress-group/expertbot/retriever"
)

// Stage is the position of a run in the pipeline state machine:
// Idle -> QueryReceived -> Searching -> Analyzed -> Voted -> Answered -> Recorded.
type Stage int

const (
	StageIdle Stage = iota
	StageQueryReceived
	StageSearching
	StageAnalyzed
	StageVoted
	StageAnswered
	StageRecorded
)

// String returns the string representation of Stage
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageQueryReceived:
		return "query_received"
	case StageSearching:
		return "searching"
	case StageAnalyzed:
		return "analyzed"
	case StageVoted:
		return "voted"
	case StageAnswered:
		return "answered"
	case StageRecorded:
		return "recorded"
	default:
		return "unknown"
	}
}

// RunState is the working state of a single run. It is created per request
// and never shared between runs.
type RunState struct {
	Query         string
	Alias         string
	FailAnswer    string
	TempQueries   []string
	Candidates    []retriever.Document
	BestFragments string
	Count         int
	AnalysisNote  string
	Voting        bool
	VotingReply   string
	Answer        string
	Stage         Stage
}

func newRunState(query, alias, fallback string) *RunState {
	return &RunState{Query: query, Alias: alias, FailAnswer: fallback, Stage: StageQueryReceived}
}

// Snapshot returns the state as a plain map for persistence.
func (s *RunState) Snapshot() map[string]any {
	candidates := s.Candidates
	if candidates == nil {
		candidates = []retriever.Document{}
	}
	queries := s.TempQueries
	if queries == nil {
		queries = []string{}
	}
	return map[string]any{
		"query":                s.Query,
		"alias":                s.Alias,
		"fail_answer":          s.FailAnswer,
		"temp_queries":         queries,
		"searching_candidates": candidates,
		"best_fragments":       s.BestFragments,
		"count":                s.Count,
		"analysis_note":        s.AnalysisNote,
		"voting":               s.Voting,
		"voting_reply":         s.VotingReply,
		"answer":               s.Answer,
		"stage":                s.Stage.String(),
	}
}

func fragmentCount(docs []retriever.Document) int {
	n := 0
	for _, d := range docs {
		n += len(d.Fragments)
	}
	return n
}
