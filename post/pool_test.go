package post

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/higress-group/expertbot/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPoolOrdersByScore(t *testing.T) {
	docs := []retriever.Document{
		{Title: "A", Link: "la", Fragments: []retriever.Fragment{{Text: "a1", Score: 0.9}, {Text: "a2", Score: 0.8}}},
		{Title: "B", Link: "lb", Fragments: []retriever.Fragment{{Text: "b1", Score: 0.95}}},
	}
	pool := BuildPool(docs, 30)
	require.Len(t, pool, 3)
	assert.Equal(t, []float64{0.95, 0.9, 0.8}, []float64{pool[0].Score, pool[1].Score, pool[2].Score})
	assert.Equal(t, "B", pool[0].Title)

	want := Pool{
		{Title: "B", Link: "lb", Text: "b1", Score: 0.95},
		{Title: "A", Link: "la", Text: "a1", Score: 0.9},
		{Title: "A", Link: "la", Text: "a2", Score: 0.8},
	}
	if diff := cmp.Diff(want, pool); diff != "" {
		t.Errorf("BuildPool() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPoolTruncatesAndAllowsSingleDocument(t *testing.T) {
	dominant := retriever.Document{Title: "D"}
	for i := 0; i < 40; i++ {
		dominant.Fragments = append(dominant.Fragments, retriever.Fragment{Text: "d", Score: 1 + float64(i)/100})
	}
	other := retriever.Document{Title: "O", Fragments: []retriever.Fragment{{Text: "o", Score: 0.1}}}

	pool := BuildPool([]retriever.Document{other, dominant}, 30)
	require.Len(t, pool, 30)
	for i, e := range pool {
		assert.Equal(t, "D", e.Title)
		if i > 0 {
			assert.GreaterOrEqual(t, pool[i-1].Score, e.Score)
		}
	}
}

func TestBuildPoolStableForTies(t *testing.T) {
	docs := []retriever.Document{
		{Title: "first", Fragments: []retriever.Fragment{{Text: "x", Score: 0.5}}},
		{Title: "second", Fragments: []retriever.Fragment{{Text: "y", Score: 0.5}}},
	}
	pool := BuildPool(docs, 0)
	assert.Equal(t, "first", pool[0].Title)
	assert.Equal(t, "second", pool[1].Title)
	assert.Empty(t, BuildPool(nil, 30))
}

func TestRender(t *testing.T) {
	pool := Pool{
		{Title: "НДС", Link: "https://1gl.ru/1", Text: "ставка 20%", Score: 0.9},
		{Title: "УСН", Link: "https://1gl.ru/2", Text: "6%", Score: 0.5},
	}
	assert.Equal(t,
		"Заголовок текста: НДС ссылка на текст: https://1gl.ru/1 Фрагмент: ставка 20%\n\n"+
			"Заголовок текста: УСН ссылка на текст: https://1gl.ru/2 Фрагмент: 6%",
		pool.Render())
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func TestFitTokens(t *testing.T) {
	pool := Pool{{Title: "a", Text: "x"}, {Title: "b", Text: "y"}, {Title: "c", Text: "z"}}
	perEntry := wordCounter{}.Count(pool[0].Render())

	assert.Len(t, pool.FitTokens(wordCounter{}, 2*perEntry), 2)
	assert.Len(t, pool.FitTokens(wordCounter{}, 0), 3)
	assert.Len(t, pool.FitTokens(nil, 1), 3)
	assert.Empty(t, pool.FitTokens(wordCounter{}, 1))
}
