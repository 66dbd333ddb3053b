package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var namePattern = regexp.MustCompile(`^\d{8}T\d{6}\.\d{9}Z-[0-9a-f-]{36}$`)

func TestNewNameUnique(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	a, b := NewName(now), NewName(now)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, namePattern, a)
	assert.True(t, strings.HasPrefix(a, "20261018T093000.000000000Z-"))
}

type opaque struct{ Ch chan int }

func (o opaque) String() string { return "opaque" }

func TestBuildMergesAndStringifies(t *testing.T) {
	snapshot := map[string]any{
		"query":  "Какая ставка НДС?",
		"answer": "from snapshot",
		"voting": true,
		"count":  3,
		"queue":  make(chan int),
		"obj":    opaque{},
		"nan":    math.NaN(),
	}
	meta := map[string]any{
		"answer":                 "from meta",
		"model_answer_generator": "qwen/qwen3-235b",
		"error":                  errors.New("boom"),
		"at":                     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	rec, err := Build(time.Now(), snapshot, meta)
	require.NoError(t, err)
	assert.Equal(t, "from meta", rec.Fields["answer"])
	assert.Equal(t, "opaque", rec.Fields["obj"])
	assert.Equal(t, "boom", rec.Fields["error"])
	assert.Equal(t, "2026-01-02T03:04:05Z", rec.Fields["at"])
	assert.Equal(t, "NaN", rec.Fields["nan"])
	assert.IsType(t, "", rec.Fields["queue"])

	text := string(rec.Payload)
	assert.Contains(t, text, "Какая ставка НДС?")
	assert.Contains(t, text, "\n    \"query\"")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Payload, &decoded))
	assert.Equal(t, "qwen/qwen3-235b", decoded["model_answer_generator"])
}

type failingSink struct{}

func (failingSink) Type() string                              { return "failing" }
func (failingSink) Write(_ context.Context, _ *Record) error { return errors.New("disk full") }

func TestSaveWritesFileAndSwallowsSinkErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "memory")
	fs := NewFileSink(dir)
	r := New(logger.Nop(), failingSink{}, fs)

	name := r.Save(context.Background(), map[string]any{"query": "q", "alias": "bss"}, map[string]any{"model_answer_generator": "m"})
	require.NotEmpty(t, name)

	data, err := os.ReadFile(fs.Path(name))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "q", decoded["query"])

	err = r.Write(context.Background(), &Record{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing sink")
}

func TestSaveUnwritableLocationDoesNotFail(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	r := New(logger.Nop(), NewFileSink(filepath.Join(blocker, "memory")))
	assert.NotPanics(t, func() {
		name := r.Save(context.Background(), map[string]any{"query": "q"}, nil)
		assert.NotEmpty(t, name)
	})
}

func TestConcurrentSavesProduceDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	r := New(logger.Nop(), NewFileSink(dir))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Save(context.Background(), map[string]any{"query": "q"}, nil)
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
