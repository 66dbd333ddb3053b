package main

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
)

type queryReq struct {
	Query string `json:"query"`
	Alias string `json:"alias"`
}

type document struct {
	Alias     string   `json:"alias"`
	Title     string   `json:"title"`
	Link      string   `json:"link"`
	Fragments []string `json:"fragments"`
}

type rankingDict struct {
	Title     string  `json:"title"`
	Link      string  `json:"link"`
	Fragments [][]any `json:"best_fragments_scores"`
}

type queryResp struct {
	RankingDicts []rankingDict `json:"ranking_dicts"`
}

var builtin = []document{
	{
		Alias: "bss", Title: "Ставки НДС", Link: "https://1gl.ru/?#/document/99/902000001/",
		Fragments: []string{
			"Основная ставка НДС составляет 20 процентов.",
			"Ставка 10 процентов применяется к продовольственным и детским товарам.",
		},
	},
	{
		Alias: "bss", Title: "Признание расходов", Link: "https://1gl.ru/?#/document/99/902000002/",
		Fragments: []string{"Расходы признаются в том периоде, к которому они относятся, по дате акта."},
	},
	{
		Alias: "uss", Title: "Трудовой договор", Link: "https://1jur.ru/?#/document/99/902000003/",
		Fragments: []string{"Трудовой договор заключается в письменной форме в двух экземплярах."},
	},
}

// score is the share of query words found in the fragment.
func score(query, text string) float64 {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}
	text = strings.ToLower(text)
	hit := 0
	for _, w := range words {
		w = strings.Trim(w, "?!.,:;\"'")
		if len([]rune(w)) > 2 && strings.Contains(text, w) {
			hit++
		}
	}
	return float64(hit) / float64(len(words))
}

func search(corpus []document, req queryReq) []rankingDict {
	var out []rankingDict
	for _, d := range corpus {
		if d.Alias != req.Alias {
			continue
		}
		rd := rankingDict{Title: d.Title, Link: d.Link}
		for _, f := range d.Fragments {
			if s := score(req.Query, f); s > 0 {
				rd.Fragments = append(rd.Fragments, []any{f, s})
			}
		}
		if len(rd.Fragments) > 0 {
			out = append(out, rd)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Fragments) > len(out[j].Fragments) })
	return out
}

func handleQuery(corpus []document, token string, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req queryReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		found := search(corpus, req)
		log.Infof("query %q alias %s -> %d documents", req.Query, req.Alias, len(found))
		if len(found) == 0 {
			http.Error(w, `{"detail":"Not Found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(queryResp{RankingDicts: found})
	}
}

func loadCorpus(path string) ([]document, error) {
	if path == "" {
		return builtin, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func main() {
	log, err := logger.New(config.LogConfig{Level: "info", Console: true})
	if err != nil {
		panic(err)
	}
	addr := ":8000"
	if v := os.Getenv("RETRIEVAL_ADDR"); v != "" {
		addr = v
	}
	token := "token123"
	if v, ok := os.LookupEnv("RETRIEVAL_TOKEN"); ok {
		token = v
	}
	corpus, err := loadCorpus(os.Getenv("RETRIEVAL_CORPUS"))
	if err != nil {
		log.Errorf("load corpus failed: %v", err)
		os.Exit(1)
	}
	http.HandleFunc("/query/", handleQuery(corpus, token, log))
	log.Infof("Retrieval mock listening on %s with %d documents", addr, len(corpus))
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Errorf("serve failed: %v", err)
		os.Exit(1)
	}
}
