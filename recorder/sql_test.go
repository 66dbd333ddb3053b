package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/higress-group/expertbot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLSink(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "records.db")
	sink, err := NewSQLSink(config.SQLRecordConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	rec, err := Build(time.Now(), map[string]any{"query": "вопрос", "alias": "bss", "answer": "ответ"}, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), rec))

	row, err := sink.Find(context.Background(), rec.Name)
	require.NoError(t, err)
	assert.Equal(t, "вопрос", row.Query)
	assert.Equal(t, "bss", row.Alias)
	assert.Equal(t, "ответ", row.Answer)
	assert.JSONEq(t, string(rec.Payload), row.Payload)

	assert.Error(t, sink.Write(context.Background(), rec), "names are unique")
}

func TestSQLSinkRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLSink(config.SQLRecordConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
