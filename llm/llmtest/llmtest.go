// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/higress-group/expertbot/llm"
)

// Rule answers requests whose prompt contains Match.
type Rule struct {
	Match    string
	Response string
	Err      error
}

// Provider replies with the first matching rule, or Default.
type Provider struct {
	Rules   []Rule
	Default string

	mu    sync.Mutex
	calls []llm.Request
}

func (p *Provider) Generate(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	for _, r := range p.Rules {
		if strings.Contains(req.Prompt, r.Match) {
			if r.Err != nil {
				return "", &llm.GenerationError{Model: req.Model, Err: r.Err}
			}
			return r.Response, nil
		}
	}
	return p.Default, nil
}

// Calls returns a copy of every request seen so far.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsMatching counts requests whose prompt contains s.
func (p *Provider) CallsMatching(s string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.Contains(c.Prompt, s) {
			n++
		}
	}
	return n
}
