package post

import (
	"context"
	"errors"
	"testing"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm/llmtest"
	"github.com/higress-group/expertbot/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	p := &llmtest.Provider{Default: "записка"}
	a := NewAnalyzer(p, config.DefaultPrompts(), "analysis-model", 2, logger.Nop())
	docs := []retriever.Document{
		{Title: "A", Link: "la", Fragments: []retriever.Fragment{{Text: "low", Score: 0.1}, {Text: "top", Score: 0.9}}},
		{Title: "B", Link: "lb", Fragments: []retriever.Fragment{{Text: "mid", Score: 0.5}}},
	}

	res, err := a.Analyze(context.Background(), "вопрос", docs)
	require.NoError(t, err)
	assert.Equal(t, "записка", res.Note)
	require.Len(t, res.Pool, 2)
	assert.Contains(t, res.Block, "Фрагмент: top")
	assert.NotContains(t, res.Block, "Фрагмент: low")

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.1, calls[0].Temperature)
	assert.Equal(t, 5000, calls[0].MaxTokens)
	assert.Equal(t, "analysis-model", calls[0].Model)
	assert.Contains(t, calls[0].Prompt, res.Block)
	assert.Contains(t, calls[0].Prompt, "вопрос")
}

func TestAnalyzeFailureKeepsBlock(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{{Match: "", Err: errors.New("down")}}}
	a := NewAnalyzer(p, config.DefaultPrompts(), "m", 30, logger.Nop())
	docs := []retriever.Document{{Title: "A", Fragments: []retriever.Fragment{{Text: "t", Score: 1}}}}

	res, err := a.Analyze(context.Background(), "q", docs)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Block)
	assert.Empty(t, res.Note)
}
