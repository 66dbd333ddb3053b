package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the expert bot service.
type Config struct {
	App       AppConfig       `json:"app" yaml:"app"`
	Log       LogConfig       `json:"log" yaml:"log"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Models    ModelsConfig    `json:"models" yaml:"models"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Recorder  RecorderConfig  `json:"recorder" yaml:"recorder"`
	Prompts   PromptsConfig   `json:"prompts" yaml:"prompts"`
	// AliasToSite maps a knowledge base alias to the site used for document links.
	AliasToSite map[string]string `json:"alias_to_site,omitempty" yaml:"alias_to_site,omitempty"`
}

// AppConfig describes the HTTP entry point.
type AppConfig struct {
	Name              string `json:"name" yaml:"name"`
	Host              string `json:"host" yaml:"host"`
	Port              int    `json:"port" yaml:"port"`
	ReadTimeoutMs     int    `json:"read_timeout_ms,omitempty" yaml:"read_timeout_ms,omitempty"`
	WriteTimeoutMs    int    `json:"write_timeout_ms,omitempty" yaml:"write_timeout_ms,omitempty"`
	ShutdownTimeoutMs int    `json:"shutdown_timeout_ms,omitempty" yaml:"shutdown_timeout_ms,omitempty"`
	// EnableMCP mounts the MCP streamable HTTP transport under /mcp.
	EnableMCP bool `json:"enable_mcp" yaml:"enable_mcp"`
}

// Addr returns host:port.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"` // debug, info, warn, error
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
	Console    bool   `json:"console" yaml:"console"`
}

// LLMConfig defines the OpenAI compatible completion endpoint.
type LLMConfig struct {
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

// ModelsConfig holds the model identifier used by every stage.
type ModelsConfig struct {
	Classifier      string `json:"classifier" yaml:"classifier"`
	QueryGeneration string `json:"query_generation" yaml:"query_generation"`
	Analysis        string `json:"analysis" yaml:"analysis"`
	Voting          string `json:"voting" yaml:"voting"`
	Answer          string `json:"answer" yaml:"answer"`
}

// RetrievalConfig selects and configures the document index backend.
type RetrievalConfig struct {
	Provider  string            `json:"provider" yaml:"provider"` // Available options: http, elasticsearch, milvus
	BaseURL   string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Token     string            `json:"token,omitempty" yaml:"token,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TimeoutMs int               `json:"timeout_ms" yaml:"timeout_ms"`
	// MaxFanout caps concurrently running searches; 0 means unlimited.
	MaxFanout     int                 `json:"max_fanout,omitempty" yaml:"max_fanout,omitempty"`
	HTTP          HTTPClientConfig    `json:"http" yaml:"http"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch" yaml:"elasticsearch"`
	Milvus        MilvusConfig        `json:"milvus" yaml:"milvus"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
}

// HTTPClientConfig configures outbound HTTP clients.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry" yaml:"retry"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
}

// ElasticsearchConfig configures the BM25 backend.
type ElasticsearchConfig struct {
	Hosts    []string `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Login    string   `json:"login,omitempty" yaml:"login,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	// Index is used when IndexByAlias has no entry for the request alias.
	Index        string            `json:"index,omitempty" yaml:"index,omitempty"`
	IndexByAlias map[string]string `json:"index_by_alias,omitempty" yaml:"index_by_alias,omitempty"`
	ModIDField   string            `json:"mod_id_field" yaml:"mod_id_field"`
	DocIDField   string            `json:"doc_id_field" yaml:"doc_id_field"`
	TitleField   string            `json:"title_field" yaml:"title_field"`
	ContentField string            `json:"content_field" yaml:"content_field"`
	Size         int               `json:"size" yaml:"size"`
	FragmentSize int               `json:"fragment_size" yaml:"fragment_size"`
	Fragments    int               `json:"fragments" yaml:"fragments"`
}

// MilvusConfig configures the vector backend.
type MilvusConfig struct {
	Address        string `json:"address,omitempty" yaml:"address,omitempty"`
	Username       string `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	Database       string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection     string `json:"collection,omitempty" yaml:"collection,omitempty"`
	VectorField    string `json:"vector_field" yaml:"vector_field"`
	TitleField     string `json:"title_field" yaml:"title_field"`
	ContentField   string `json:"content_field" yaml:"content_field"`
	LinkField      string `json:"link_field" yaml:"link_field"`
	AliasField     string `json:"alias_field" yaml:"alias_field"`
	MetricType     string `json:"metric_type" yaml:"metric_type"` // IP, L2, COSINE
	TopK           int    `json:"top_k" yaml:"top_k"`
	Ef             int    `json:"ef" yaml:"ef"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
}

// CacheConfig configures the retrieval result cache.
type CacheConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	Capacity   int  `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TTLSeconds int  `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
}

// PipelineConfig toggles optional stages and holds pipeline constants.
type PipelineConfig struct {
	ExpandQueries bool `json:"expand_queries" yaml:"expand_queries"`
	Voting        bool `json:"voting" yaml:"voting"`
	MaxTexts      int  `json:"max_texts" yaml:"max_texts"`
	// MaxPromptTokens bounds the rendered fragment block; 0 disables the budget.
	MaxPromptTokens int           `json:"max_prompt_tokens,omitempty" yaml:"max_prompt_tokens,omitempty"`
	TokenizerModel  string        `json:"tokenizer_model,omitempty" yaml:"tokenizer_model,omitempty"`
	FallbackAnswer  string        `json:"fallback_answer" yaml:"fallback_answer"`
	Replies         RepliesConfig `json:"replies" yaml:"replies"`
}

// RepliesConfig holds the canned replies of the classification gate.
type RepliesConfig struct {
	Greeting string `json:"greeting" yaml:"greeting"`
	Thanks   string `json:"thanks" yaml:"thanks"`
	Unknown  string `json:"unknown" yaml:"unknown"`
}

// RecorderConfig configures where run records are persisted.
type RecorderConfig struct {
	Sinks []string          `json:"sinks" yaml:"sinks"` // Available options: file, redis, sql
	Dir   string            `json:"dir" yaml:"dir"`
	Redis RedisRecordConfig `json:"redis" yaml:"redis"`
	SQL   SQLRecordConfig   `json:"sql" yaml:"sql"`
}

// RedisRecordConfig configures the Redis record sink.
type RedisRecordConfig struct {
	Address    string `json:"address,omitempty" yaml:"address,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	DB         int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix     string `json:"prefix" yaml:"prefix"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
}

// SQLRecordConfig configures the SQL record sink.
type SQLRecordConfig struct {
	Driver string `json:"driver" yaml:"driver"` // Available options: sqlite, postgres, mysql, clickhouse
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// PromptsConfig points at an optional prompt override file.
type PromptsConfig struct {
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:              "Экспертный бот",
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeoutMs:     30000,
			WriteTimeoutMs:    300000,
			ShutdownTimeoutMs: 10000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Console:    true,
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.vsegpt.ru:7090/v1",
			TimeoutMs:  300000,
			MaxRetries: 0,
		},
		Models: ModelsConfig{
			Classifier:      "openai/gpt-4o-mini",
			QueryGeneration: "openai/gpt-4o-mini",
			Analysis:        "openai/gpt-4o-mini",
			Voting:          "openai/gpt-4o-mini",
			Answer:          "qwen/qwen3-235b",
		},
		Retrieval: RetrievalConfig{
			Provider:  "http",
			BaseURL:   "http://0.0.0.0:8000",
			Endpoint:  "/query/",
			Token:     "token123",
			TimeoutMs: 15000,
			HTTP: HTTPClientConfig{
				Retry:                  0,
				BackoffMinMs:           100,
				BackoffMaxMs:           800,
				MaxConsecutiveFailures: 5,
				CircuitOpenSeconds:     5,
			},
			Elasticsearch: ElasticsearchConfig{
				Index:        "documents",
				ModIDField:   "mod_id",
				DocIDField:   "doc_id",
				TitleField:   "title",
				ContentField: "content",
				Size:         10,
				FragmentSize: 400,
				Fragments:    3,
			},
			Milvus: MilvusConfig{
				Collection:     "documents",
				VectorField:    "vector",
				TitleField:     "title",
				ContentField:   "content",
				LinkField:      "link",
				AliasField:     "alias",
				MetricType:     "IP",
				TopK:           10,
				Ef:             64,
				EmbeddingModel: "text-embedding-3-small",
			},
			Cache: CacheConfig{
				Enabled:    false,
				Capacity:   512,
				TTLSeconds: 300,
			},
		},
		Pipeline: PipelineConfig{
			ExpandQueries:  true,
			Voting:         true,
			MaxTexts:       30,
			FallbackAnswer: "НЕТ ОТВЕТА",
			Replies: RepliesConfig{
				Greeting: "Рады приветствовать вас на нашем сайте",
				Thanks:   "Рады, что смогли вам помочь",
				Unknown:  "Не удалось определить тип вашего запроса. Пожалуйста, переформулируйте его.",
			},
		},
		Recorder: RecorderConfig{
			Sinks: []string{"file"},
			Dir:   "data/memory",
			Redis: RedisRecordConfig{Prefix: "expertbot:"},
			SQL:   SQLRecordConfig{Driver: "sqlite"},
		},
		AliasToSite: map[string]string{
			"bss.vip": "https://vip.1gl.ru",
			"bss":     "https://1gl.ru",
			"uss":     "https://1jur.ru",
		},
	}
}

// LoadDotEnv loads variables from .env style files into the process
// environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s failed, err: %w", f, err)
		}
	}
	return nil
}

// Load builds a Config from defaults, an optional YAML or JSON file and the
// environment, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s failed, err: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s failed, err: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("OPENAI_API_KEY", &c.LLM.APIKey)
	set("LLM_BASE_URL", &c.LLM.BaseURL)
	set("RETRIEVAL_BASE_URL", &c.Retrieval.BaseURL)
	set("RETRIEVAL_TOKEN", &c.Retrieval.Token)
	set("ES_LOGIN", &c.Retrieval.Elasticsearch.Login)
	set("ES_PASSWORD", &c.Retrieval.Elasticsearch.Password)
	set("MILVUS_ADDRESS", &c.Retrieval.Milvus.Address)
	set("REDIS_ADDRESS", &c.Recorder.Redis.Address)
	set("RECORDER_DSN", &c.Recorder.SQL.DSN)
	set("LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("ES_HOSTS"); ok && v != "" {
		hosts := make([]string, 0)
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		c.Retrieval.Elasticsearch.Hosts = hosts
	}
}
