package voting

import (
	"context"
	"errors"
	"testing"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/llm"
)

// MockLLMProvider is a mock implementation of llm.Provider for testing
type MockLLMProvider struct {
	response string
	err      error
	last     llm.Request
}

func (m *MockLLMProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.last = req
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected Verdict
	}{
		{name: "exact phrase", response: "Общее мнение: есть ответ", expected: VerdictRelevant},
		{name: "upper case", response: "ОБЩЕЕ МНЕНИЕ: ЕСТЬ ОТВЕТ", expected: VerdictRelevant},
		{name: "extra whitespace", response: "Эксперт 1: да\nобщее   мнение:\tесть\nответ.", expected: VerdictRelevant},
		{name: "negative consensus", response: "Общее мнение: НЕТ ответа", expected: VerdictIrrelevant},
		{name: "no space after colon", response: "Общее мнение:есть ответ", expected: VerdictIrrelevant},
		{name: "empty reply", response: "", expected: VerdictIrrelevant},
		{name: "unrelated text", response: "есть ответ", expected: VerdictIrrelevant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVerdict(tt.response); got != tt.expected {
				t.Errorf("Expected verdict %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestVote(t *testing.T) {
	mock := &MockLLMProvider{response: "Эксперты согласны. Общее мнение: есть ответ"}
	v := New(mock, config.DefaultPrompts(), "vote-model", logger.Nop())

	verdict, raw, err := v.Vote(context.Background(), "вопрос", "записка", "фрагменты")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if verdict != VerdictRelevant {
		t.Errorf("Expected relevant, got %v", verdict)
	}
	if raw != mock.response {
		t.Errorf("Expected raw reply to be returned, got %q", raw)
	}
	if mock.last.Temperature != 0.2 || mock.last.MaxTokens != 1000 || mock.last.Model != "vote-model" {
		t.Errorf("Unexpected request parameters: %+v", mock.last)
	}
}

func TestVoteError(t *testing.T) {
	genErr := &llm.GenerationError{Model: "m", Err: errors.New("rate limited")}
	v := New(&MockLLMProvider{err: genErr}, config.DefaultPrompts(), "m", logger.Nop())

	verdict, _, err := v.Vote(context.Background(), "q", "n", "b")
	if !errors.Is(err, genErr) {
		t.Errorf("Expected generation error, got %v", err)
	}
	if verdict != VerdictIrrelevant {
		t.Errorf("Expected irrelevant on error, got %v", verdict)
	}
}
