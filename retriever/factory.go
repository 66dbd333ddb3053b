package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/higress-group/expertbot/common/httpx"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// New builds the configured backend, wrapped in a cache when enabled.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Client, error) {
	rc := cfg.Retrieval
	httpCfg := rc.HTTP
	if httpCfg.TimeoutMs <= 0 {
		httpCfg.TimeoutMs = rc.TimeoutMs
	}

	var (
		c   Client
		err error
	)
	switch strings.ToLower(rc.Provider) {
	case "http", "":
		c = NewHTTPClient(rc, httpx.NewFromConfig(&httpCfg, log), log)
	case "elasticsearch":
		c = NewElasticsearchClient(rc.Elasticsearch, cfg.AliasToSite, httpx.NewFromConfig(&httpCfg, log), log)
	case "milvus":
		opts := []option.RequestOption{option.WithAPIKey(cfg.LLM.APIKey)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.LLM.BaseURL))
		}
		embedder := &OpenAIEmbedder{Client: openai.NewClient(opts...), Model: rc.Milvus.EmbeddingModel}
		c, err = NewMilvusClient(ctx, rc.Milvus, embedder, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported retrieval provider %q", rc.Provider)
	}

	if rc.Cache.Enabled {
		ttl := time.Duration(rc.Cache.TTLSeconds) * time.Second
		c = NewCached(c, rc.Cache.Capacity, ttl)
	}
	return c, nil
}
