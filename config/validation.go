package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Has reports whether a field failed validation.
func (errs ValidationErrors) Has(field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateApp()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateRecorder()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errs ValidationErrors
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "app.port",
			Message: fmt.Sprintf("port must be in 1..65535, got %d", c.App.Port),
		})
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unsupported log level %q", c.Log.Level),
		})
	}
	return errs
}

func (c *Config) validateModels() ValidationErrors {
	var errs ValidationErrors
	models := map[string]string{
		"models.classifier":       c.Models.Classifier,
		"models.query_generation": c.Models.QueryGeneration,
		"models.analysis":         c.Models.Analysis,
		"models.voting":           c.Models.Voting,
		"models.answer":           c.Models.Answer,
	}
	for _, field := range []string{"models.classifier", "models.query_generation", "models.analysis", "models.voting", "models.answer"} {
		if strings.TrimSpace(models[field]) == "" {
			errs = append(errs, ValidationError{Field: field, Message: "model identifier is required"})
		}
	}
	return errs
}

func (c *Config) validateRetrieval() ValidationErrors {
	var errs ValidationErrors
	r := c.Retrieval

	if r.TimeoutMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.timeout_ms",
			Message: "retrieval timeout must be positive",
		})
	}
	if r.MaxFanout < 0 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.max_fanout",
			Message: "max_fanout cannot be negative",
		})
	}

	switch strings.ToLower(r.Provider) {
	case "http":
		if _, err := url.ParseRequestURI(r.BaseURL); err != nil || r.BaseURL == "" {
			errs = append(errs, ValidationError{
				Field:   "retrieval.base_url",
				Message: fmt.Sprintf("invalid retrieval base url %q", r.BaseURL),
			})
		}
	case "elasticsearch":
		if len(r.Elasticsearch.Hosts) == 0 {
			errs = append(errs, ValidationError{
				Field:   "retrieval.elasticsearch.hosts",
				Message: "at least one elasticsearch host is required",
			})
		}
		if r.Elasticsearch.Index == "" && len(r.Elasticsearch.IndexByAlias) == 0 {
			errs = append(errs, ValidationError{
				Field:   "retrieval.elasticsearch.index",
				Message: "an index or index_by_alias mapping is required",
			})
		}
	case "milvus":
		if r.Milvus.Address == "" {
			errs = append(errs, ValidationError{
				Field:   "retrieval.milvus.address",
				Message: "milvus address is required",
			})
		}
		if r.Milvus.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "retrieval.milvus.collection",
				Message: "milvus collection is required",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "retrieval.provider",
			Message: fmt.Sprintf("unsupported retrieval provider %q, expected http, elasticsearch or milvus", r.Provider),
		})
	}
	return errs
}

func (c *Config) validatePipeline() ValidationErrors {
	var errs ValidationErrors
	p := c.Pipeline
	if p.MaxTexts <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.max_texts",
			Message: fmt.Sprintf("max_texts must be positive, got %d", p.MaxTexts),
		})
	}
	if p.MaxPromptTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.max_prompt_tokens",
			Message: "max_prompt_tokens cannot be negative",
		})
	}
	if strings.TrimSpace(p.FallbackAnswer) == "" {
		errs = append(errs, ValidationError{
			Field:   "pipeline.fallback_answer",
			Message: "fallback answer sentinel is required",
		})
	}
	return errs
}

func (c *Config) validateRecorder() ValidationErrors {
	var errs ValidationErrors
	rc := c.Recorder
	for _, sink := range rc.Sinks {
		switch strings.ToLower(sink) {
		case "file":
			if rc.Dir == "" {
				errs = append(errs, ValidationError{Field: "recorder.dir", Message: "record directory is required for the file sink"})
			}
		case "redis":
			if rc.Redis.Address == "" {
				errs = append(errs, ValidationError{Field: "recorder.redis.address", Message: "redis address is required for the redis sink"})
			}
		case "sql":
			switch rc.SQL.Driver {
			case "sqlite", "postgres", "mysql", "clickhouse":
			default:
				errs = append(errs, ValidationError{Field: "recorder.sql.driver", Message: fmt.Sprintf("unsupported sql driver %q", rc.SQL.Driver)})
			}
			if rc.SQL.DSN == "" {
				errs = append(errs, ValidationError{Field: "recorder.sql.dsn", Message: "dsn is required for the sql sink"})
			}
		default:
			errs = append(errs, ValidationError{Field: "recorder.sinks", Message: fmt.Sprintf("unknown record sink %q", sink)})
		}
	}
	return errs
}
