package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueries(t *testing.T) {
	raw := "Вопрос1: Какая ставка НДС?\n\nВопрос2:   Ставка НДС для услуг  \n" +
		"Вопрос3: Какая ставка НДС?\nВопрос12: Вопрос4: двойная метка\n   \nбез метки"
	got := ParseQueries("  Ставка НДС  ", raw)
	assert.Equal(t, []string{
		"Ставка НДС",
		"Какая ставка НДС?",
		"Ставка НДС для услуг",
		"двойная метка",
		"без метки",
	}, got)
}

func TestParseQueriesOriginalNotRepeated(t *testing.T) {
	got := ParseQueries("q", "Вопрос1: q\nВопрос2: q ")
	assert.Equal(t, []string{"q"}, got)
}

func TestExpandDisabledSkipsModel(t *testing.T) {
	p := &llmtest.Provider{}
	e := NewExpander(p, config.DefaultPrompts(), "m", logger.Nop())

	qs, err := e.Expand(context.Background(), "вопрос", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"вопрос"}, qs)
	assert.Empty(t, p.Calls())
}

func TestExpandCallsModel(t *testing.T) {
	p := &llmtest.Provider{Default: "Вопрос1: а\nВопрос2: б"}
	e := NewExpander(p, config.DefaultPrompts(), "gen-model", logger.Nop())

	qs, err := e.Expand(context.Background(), "вопрос", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"вопрос", "а", "б"}, qs)

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1.0, calls[0].Temperature)
	assert.Equal(t, 3000, calls[0].MaxTokens)
	assert.Equal(t, "gen-model", calls[0].Model)
	assert.Contains(t, calls[0].Prompt, "вопрос")
}

func TestExpandFailure(t *testing.T) {
	p := &llmtest.Provider{Rules: []llmtest.Rule{{Match: "", Err: errors.New("503")}}}
	e := NewExpander(p, config.DefaultPrompts(), "m", logger.Nop())

	_, err := e.Expand(context.Background(), "вопрос", true)
	var genErr *llm.GenerationError
	assert.True(t, errors.As(err, &genErr))
}
