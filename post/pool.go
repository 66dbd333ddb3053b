package post

import (
	"fmt"
	"sort"
	"strings"

	"github.com/higress-group/expertbot/llm"
	"github.com/higress-group/expertbot/retriever"
)

// Entry is a fragment tagged with its parent document.
type Entry struct {
	Title string  `json:"title"`
	Link  string  `json:"link"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Render formats the entry the way the analysis prompts expect it.
func (e Entry) Render() string {
	return fmt.Sprintf("Заголовок текста: %s ссылка на текст: %s Фрагмент: %s", e.Title, e.Link, e.Text)
}

// Pool is an ordered list of fragments, best score first.
type Pool []Entry

// BuildPool flattens every fragment of every document, sorts by score
// descending (stable for equal scores) and keeps at most maxTexts entries.
// Documents are not balanced: one document may fill the whole pool.
func BuildPool(docs []retriever.Document, maxTexts int) Pool {
	var pool Pool
	for _, d := range docs {
		for _, f := range d.Fragments {
			pool = append(pool, Entry{Title: d.Title, Link: d.Link, Text: f.Text, Score: f.Score})
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
	if maxTexts > 0 && len(pool) > maxTexts {
		pool = pool[:maxTexts]
	}
	return pool
}

// Render joins the rendered entries with a blank line.
func (p Pool) Render() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = e.Render()
	}
	return strings.Join(parts, "\n\n")
}

// FitTokens drops the lowest ranked entries until the rendered block fits
// budget tokens. A non-positive budget or nil counter leaves the pool as is.
func (p Pool) FitTokens(counter llm.TokenCounter, budget int) Pool {
	if counter == nil || budget <= 0 {
		return p
	}
	total := 0
	sep := counter.Count("\n\n")
	for i, e := range p {
		n := counter.Count(e.Render())
		if i > 0 {
			n += sep
		}
		if total+n > budget {
			return p[:i]
		}
		total += n
	}
	return p
}
