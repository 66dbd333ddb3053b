package retriever

import (
	"context"
	"fmt"
)

// Fragment is a scored passage of a document.
type Fragment struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Document is one candidate returned by the index. It is never modified
// after a client returns it.
type Document struct {
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Fragments []Fragment `json:"best_fragments_scores"`
}

// Request is a single search against the index.
type Request struct {
	Query string `json:"query"`
	Alias string `json:"alias"`
}

// Client defines a unified search interface across different backends.
type Client interface {
	Type() string
	Search(ctx context.Context, req Request) ([]Document, error)
}

// StatusError reports an index response with status >= 400.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s search failed with status %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s search failed with status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// NetworkError covers transport failures, timeouts and undecodable bodies.
type NetworkError struct {
	Backend string
	Op      string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
