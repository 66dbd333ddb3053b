package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/metrics"
)

// Saver persists run snapshots. Implementations never fail the caller.
type Saver interface {
	Save(ctx context.Context, snapshot, meta map[string]any) string
}

// Record is a serialized run ready for a sink.
type Record struct {
	Name      string
	CreatedAt time.Time
	Fields    map[string]any
	Payload   []byte
}

// Field returns a text field of the record, or "".
func (r *Record) Field(key string) string {
	if s, ok := r.Fields[key].(string); ok {
		return s
	}
	return ""
}

// Sink stores records somewhere durable.
type Sink interface {
	Type() string
	Write(ctx context.Context, rec *Record) error
}

// Recorder merges a run snapshot with metadata and writes it to every sink.
type Recorder struct {
	sinks []Sink
	log   *logger.Logger
	now   func() time.Time
}

func New(log *logger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks, log: log.Named("recorder"), now: time.Now}
}

// NewFromConfig builds the sinks listed in configuration.
func NewFromConfig(cfg config.RecorderConfig, log *logger.Logger) (*Recorder, error) {
	var sinks []Sink
	for _, name := range cfg.Sinks {
		switch strings.ToLower(name) {
		case "file":
			sinks = append(sinks, NewFileSink(cfg.Dir))
		case "redis":
			sinks = append(sinks, NewRedisSink(cfg.Redis))
		case "sql":
			s, err := NewSQLSink(cfg.SQL)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			return nil, fmt.Errorf("unknown record sink %q", name)
		}
	}
	return New(log, sinks...), nil
}

// NewName returns a unique record name: UTC timestamp plus a random suffix.
func NewName(now time.Time) string {
	return now.UTC().Format("20060102T150405.000000000Z") + "-" + uuid.NewString()
}

// Build merges snapshot and meta (meta wins), replaces values that cannot be
// encoded as JSON with their string form and serializes the result as
// indented JSON with non-ASCII text kept as is.
func Build(now time.Time, snapshot, meta map[string]any) (*Record, error) {
	fields := make(map[string]any, len(snapshot)+len(meta))
	for k, v := range snapshot {
		fields[k] = Stringify(v)
	}
	for k, v := range meta {
		fields[k] = Stringify(v)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return &Record{Name: NewName(now), CreatedAt: now, Fields: fields, Payload: buf.Bytes()}, nil
}

// Stringify keeps JSON-encodable values and turns everything else into text.
func Stringify(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64:
		return v
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprint(t)
		}
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case error:
		return t.Error()
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}

// Save writes the record to every sink. Failures are logged and counted,
// never returned. The record name is returned even when every sink failed.
func (r *Recorder) Save(ctx context.Context, snapshot, meta map[string]any) string {
	rec, err := Build(r.now(), snapshot, meta)
	if err != nil {
		r.log.Errorf("build run record failed: %v", err)
		metrics.IncRecordWrite("build", err)
		return ""
	}
	if err := r.Write(ctx, rec); err != nil {
		r.log.Errorf("persist run record %s failed: %v", rec.Name, err)
	} else {
		r.log.Infof("run record %s saved to %d sink(s)", rec.Name, len(r.sinks))
	}
	return rec.Name
}

// Write sends rec to every sink and aggregates the failures.
func (r *Recorder) Write(ctx context.Context, rec *Record) error {
	var errs *multierror.Error
	for _, s := range r.sinks {
		err := s.Write(ctx, rec)
		metrics.IncRecordWrite(s.Type(), err)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s sink: %w", s.Type(), err))
		}
	}
	return errs.ErrorOrNil()
}

// Close releases sinks that hold connections.
func (r *Recorder) Close() error {
	var errs *multierror.Error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("close %s sink: %w", s.Type(), err))
			}
		}
	}
	return errs.ErrorOrNil()
}
