package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/openai/openai-go/v2"
)

// Embedder turns a query into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI compatible embeddings endpoint.
type OpenAIEmbedder struct {
	Client openai.Client
	Model  string
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.Client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// vectorSearcher is the subset of the milvus client used for retrieval.
type vectorSearcher interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
}

// MilvusClient searches chunk embeddings stored in a Milvus collection. Hits
// sharing a link are grouped into a single document.
type MilvusClient struct {
	cfg      config.MilvusConfig
	searcher vectorSearcher
	embedder Embedder
	log      *logger.Logger
}

// NewMilvusClient connects to Milvus.
func NewMilvusClient(ctx context.Context, cfg config.MilvusConfig, embedder Embedder, log *logger.Logger) (*MilvusClient, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s failed, err: %w", cfg.Address, err)
	}
	return newMilvusClient(cfg, c, embedder, log), nil
}

func newMilvusClient(cfg config.MilvusConfig, s vectorSearcher, embedder Embedder, log *logger.Logger) *MilvusClient {
	return &MilvusClient{cfg: cfg, searcher: s, embedder: embedder, log: log.Named("retriever.milvus")}
}

func (r *MilvusClient) Type() string { return "milvus" }

func (r *MilvusClient) metric() entity.MetricType {
	switch strings.ToUpper(r.cfg.MetricType) {
	case "L2":
		return entity.L2
	case "COSINE":
		return entity.COSINE
	default:
		return entity.IP
	}
}

func (r *MilvusClient) filter(alias string) string {
	if alias == "" || r.cfg.AliasField == "" {
		return ""
	}
	escaped := strings.ReplaceAll(alias, `"`, `\"`)
	return fmt.Sprintf(`%s == "%s"`, r.cfg.AliasField, escaped)
}

func (r *MilvusClient) Search(ctx context.Context, req Request) ([]Document, error) {
	vec, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, &NetworkError{Backend: r.Type(), Op: "embed", Err: err}
	}
	ef := r.cfg.Ef
	if ef <= 0 {
		ef = 64
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, err
	}
	topK := r.cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	fields := []string{r.cfg.TitleField, r.cfg.LinkField, r.cfg.ContentField}
	results, err := r.searcher.Search(ctx, r.cfg.Collection, nil, r.filter(req.Alias), fields,
		[]entity.Vector{entity.FloatVector(vec)}, r.cfg.VectorField, r.metric(), topK, sp)
	if err != nil {
		return nil, &NetworkError{Backend: r.Type(), Op: "search", Err: err}
	}
	return r.group(results), nil
}

func (r *MilvusClient) group(results []client.SearchResult) []Document {
	var docs []Document
	index := make(map[string]int)
	for _, res := range results {
		if res.Err != nil {
			r.log.Warnf("partial search result error: %v", res.Err)
			continue
		}
		titles := res.Fields.GetColumn(r.cfg.TitleField)
		links := res.Fields.GetColumn(r.cfg.LinkField)
		contents := res.Fields.GetColumn(r.cfg.ContentField)
		if contents == nil {
			continue
		}
		for i := 0; i < res.ResultCount && i < len(res.Scores); i++ {
			text, err := contents.GetAsString(i)
			if err != nil || text == "" {
				continue
			}
			title := columnString(titles, i)
			link := columnString(links, i)
			key := link + "\x00" + title
			pos, ok := index[key]
			if !ok {
				pos = len(docs)
				index[key] = pos
				docs = append(docs, Document{Title: title, Link: link})
			}
			docs[pos].Fragments = append(docs[pos].Fragments, Fragment{Text: text, Score: float64(res.Scores[i])})
		}
	}
	return docs
}

func columnString(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	s, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return s
}
