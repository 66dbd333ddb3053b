package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/higress-group/expertbot/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls int
	err   error
}

func (c *countingClient) Type() string { return "counting" }

func (c *countingClient) Search(_ context.Context, req Request) ([]Document, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []Document{{Title: req.Query}}, nil
}

func TestCachedSearch(t *testing.T) {
	next := &countingClient{}
	c := NewCached(next, 8, time.Minute)

	for i := 0; i < 3; i++ {
		docs, err := c.Search(context.Background(), Request{Query: "q", Alias: "bss"})
		require.NoError(t, err)
		assert.Equal(t, "q", docs[0].Title)
	}
	_, _ = c.Search(context.Background(), Request{Query: "q", Alias: "uss"})
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, "counting", c.Type())
	assert.Equal(t, uint64(2), c.Cache.Stats().Hits)
	assert.Equal(t, 2, c.Cache.Len())
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	next := &countingClient{err: errors.New("down")}
	c := &Cached{Next: next, Cache: cache.NewLRU[[]Document](8, time.Minute)}
	_, err := c.Search(context.Background(), Request{Query: "q"})
	assert.Error(t, err)
	_, err = c.Search(context.Background(), Request{Query: "q"})
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
