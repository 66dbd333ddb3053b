package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/higress-group/expertbot/common/httpx"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/tidwall/gjson"
)

// HTTPClient calls a retrieval service that answers
// {"ranking_dicts": [{"title", "link", "best_fragments_scores": [[text, score], ...]}]}.
type HTTPClient struct {
	URL     string
	Headers map[string]string
	Client  *httpx.Client
	log     *logger.Logger
}

// NewHTTPClient builds the client from retrieval configuration.
func NewHTTPClient(cfg config.RetrievalConfig, hc *httpx.Client, log *logger.Logger) *HTTPClient {
	headers := make(map[string]string, len(cfg.Headers)+1)
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &HTTPClient{
		URL:     strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Endpoint, "/"),
		Headers: headers,
		Client:  hc,
		log:     log.Named("retriever.http"),
	}
}

func (c *HTTPClient) Type() string { return "http" }

func (c *HTTPClient) Search(ctx context.Context, req Request) ([]Document, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("retrieval http client not configured")
	}
	bs, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	for k, v := range c.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := c.Client.Do(hreq)
	if err != nil {
		return nil, &NetworkError{Backend: c.Type(), Op: "request", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Backend: c.Type(), Op: "read body", Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Backend: c.Type(), StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	docs, dropped, err := ParseRankingDicts(body)
	if err != nil {
		return nil, &NetworkError{Backend: c.Type(), Op: "decode", Err: err}
	}
	if dropped > 0 {
		c.log.Warnf("dropped %d malformed candidates for query %q", dropped, req.Query)
	}
	return docs, nil
}

// ParseRankingDicts decodes a retrieval service body. Candidates that are not
// objects or carry no fragment list are dropped and counted; fragments that
// are neither [text, score] pairs nor {"text", "score"} objects are skipped.
func ParseRankingDicts(body []byte) ([]Document, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, fmt.Errorf("response is not valid json")
	}
	list := gjson.GetBytes(body, "ranking_dicts")
	if !list.Exists() {
		return nil, 0, fmt.Errorf("response has no ranking_dicts")
	}
	if !list.IsArray() {
		return nil, 0, fmt.Errorf("ranking_dicts is %s, expected array", list.Type)
	}

	var (
		docs    []Document
		dropped int
	)
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			dropped++
			return true
		}
		frs := item.Get("best_fragments_scores")
		if !frs.IsArray() {
			dropped++
			return true
		}
		doc := Document{
			Title:     item.Get("title").String(),
			Link:      item.Get("link").String(),
			Fragments: make([]Fragment, 0, len(frs.Array())),
		}
		frs.ForEach(func(_, fr gjson.Result) bool {
			if f, ok := parseFragment(fr); ok {
				doc.Fragments = append(doc.Fragments, f)
			}
			return true
		})
		docs = append(docs, doc)
		return true
	})
	return docs, dropped, nil
}

func parseFragment(fr gjson.Result) (Fragment, bool) {
	var text, score gjson.Result
	switch {
	case fr.IsArray():
		parts := fr.Array()
		if len(parts) < 2 {
			return Fragment{}, false
		}
		text, score = parts[0], parts[1]
	case fr.IsObject():
		text, score = fr.Get("text"), fr.Get("score")
	default:
		return Fragment{}, false
	}
	if text.Type != gjson.String || score.Type != gjson.Number {
		return Fragment{}, false
	}
	return Fragment{Text: text.String(), Score: score.Float()}, true
}
