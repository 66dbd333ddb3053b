package recorder

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/higress-group/expertbot/config"
)

// RedisSink stores records in Redis.
// Data model:
//   - key prefix+"run:"+name => JSON record, optional TTL
//   - key prefix+"idx" => sorted set of names scored by creation time
type RedisSink struct {
	rc     redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSink(cfg config.RedisRecordConfig) *RedisSink {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisSinkWithClient(rc, cfg.Prefix, time.Duration(cfg.TTLSeconds)*time.Second)
}

func NewRedisSinkWithClient(rc redis.UniversalClient, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{rc: rc, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) Type() string { return "redis" }

func (s *RedisSink) idxKey() string            { return s.prefix + "idx" }
func (s *RedisSink) runKey(name string) string { return s.prefix + "run:" + name }

func (s *RedisSink) Write(ctx context.Context, rec *Record) error {
	_, err := s.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.runKey(rec.Name), rec.Payload, s.ttl)
		p.ZAdd(ctx, s.idxKey(), &redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.Name})
		return nil
	})
	return err
}

// Get returns the stored JSON of a record.
func (s *RedisSink) Get(ctx context.Context, name string) ([]byte, error) {
	return s.rc.Get(ctx, s.runKey(name)).Bytes()
}

// Recent lists the newest record names, newest first.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 {
		n = 100
	}
	return s.rc.ZRevRange(ctx, s.idxKey(), 0, n-1).Result()
}

// Close releases the connection pool.
func (s *RedisSink) Close() error { return s.rc.Close() }
