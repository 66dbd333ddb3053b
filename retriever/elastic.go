package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/higress-group/expertbot/common/httpx"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/tidwall/gjson"
)

// ElasticsearchClient runs BM25 multi_match queries and turns highlight
// fragments into scored passages. Links are built from the mod/doc id fields
// and the alias site map.
// Endpoint example: http://es:9200
type ElasticsearchClient struct {
	cfg         config.ElasticsearchConfig
	aliasToSite map[string]string
	client      *httpx.Client
	log         *logger.Logger
	next        uint32
}

func NewElasticsearchClient(cfg config.ElasticsearchConfig, aliasToSite map[string]string, hc *httpx.Client, log *logger.Logger) *ElasticsearchClient {
	return &ElasticsearchClient{cfg: cfg, aliasToSite: aliasToSite, client: hc, log: log.Named("retriever.es")}
}

func (r *ElasticsearchClient) Type() string { return "elasticsearch" }

var highlightTags = strings.NewReplacer("<em>", "", "</em>", "")

func (r *ElasticsearchClient) index(alias string) string {
	if idx, ok := r.cfg.IndexByAlias[alias]; ok && idx != "" {
		return idx
	}
	return r.cfg.Index
}

func (r *ElasticsearchClient) buildQuery(query string) map[string]interface{} {
	size := r.cfg.Size
	if size <= 0 {
		size = 10
	}
	return map[string]interface{}{
		"size":    size,
		"_source": []string{r.cfg.TitleField, r.cfg.ModIDField, r.cfg.DocIDField, r.cfg.ContentField},
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{r.cfg.ContentField + "^2", r.cfg.TitleField},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				r.cfg.ContentField: map[string]interface{}{
					"fragment_size":       r.cfg.FragmentSize,
					"number_of_fragments": r.cfg.Fragments,
				},
			},
		},
	}
}

// Search tries the configured hosts round-robin and fails over on transport
// errors. A status error from any host is final.
func (r *ElasticsearchClient) Search(ctx context.Context, req Request) ([]Document, error) {
	if len(r.cfg.Hosts) == 0 {
		return nil, &NetworkError{Backend: r.Type(), Op: "request", Err: fmt.Errorf("no elasticsearch hosts configured")}
	}
	index := r.index(req.Alias)
	if index == "" {
		return nil, fmt.Errorf("no elasticsearch index for alias %q", req.Alias)
	}
	bs, _ := json.Marshal(r.buildQuery(req.Query))

	start := int(atomic.AddUint32(&r.next, 1))
	var lastErr error
	for i := 0; i < len(r.cfg.Hosts); i++ {
		host := r.cfg.Hosts[(start+i)%len(r.cfg.Hosts)]
		docs, err := r.searchHost(ctx, host, index, bs, req.Alias)
		if err == nil {
			return docs, nil
		}
		lastErr = err
		if _, ok := err.(*NetworkError); !ok || ctx.Err() != nil {
			return nil, err
		}
		r.log.Warnf("host %s failed, trying next: %v", host, err)
	}
	return nil, lastErr
}

func (r *ElasticsearchClient) searchHost(ctx context.Context, host, index string, body []byte, alias string) ([]Document, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, index, "_search")
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if r.cfg.Login != "" {
		hreq.SetBasicAuth(r.cfg.Login, r.cfg.Password)
	}
	if r.client == nil {
		return nil, fmt.Errorf("elasticsearch http client not configured")
	}
	resp, err := r.client.Do(hreq)
	if err != nil {
		return nil, &NetworkError{Backend: r.Type(), Op: "request", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Backend: r.Type(), Op: "read body", Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Backend: r.Type(), StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &NetworkError{Backend: r.Type(), Op: "decode", Err: fmt.Errorf("response is not valid json")}
	}
	return r.parseHits(raw, alias), nil
}

func (r *ElasticsearchClient) parseHits(raw []byte, alias string) []Document {
	hits := gjson.GetBytes(raw, "hits.hits").Array()
	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		src := h.Get("_source")
		score := h.Get("_score").Float()
		doc := Document{
			Title: src.Get(r.cfg.TitleField).String(),
			Link: BuildDocumentLink(r.aliasToSite, alias,
				src.Get(r.cfg.ModIDField).String(),
				src.Get(r.cfg.DocIDField).String()),
		}
		for _, hl := range h.Get("highlight").Get(r.cfg.ContentField).Array() {
			doc.Fragments = append(doc.Fragments, Fragment{Text: highlightTags.Replace(hl.String()), Score: score})
		}
		if len(doc.Fragments) == 0 {
			if content := src.Get(r.cfg.ContentField).String(); content != "" {
				size := r.cfg.FragmentSize
				if size <= 0 {
					size = 400
				}
				doc.Fragments = append(doc.Fragments, Fragment{Text: truncate(content, size), Score: score})
			}
		}
		out = append(out, doc)
	}
	return out
}
