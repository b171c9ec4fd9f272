package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/redis"
)

// KV is the subset of the Redis client the snapshot store uses.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// RedisSnapshot keeps JSON copies of datasets in Redis, one key per factory.
// It is both a Source and a Snapshotter.
type RedisSnapshot struct {
	kv     KV
	prefix string
	ttl    time.Duration
	isMiss func(error) bool
	logger *slog.Logger
}

// NewRedisSnapshot builds a snapshot store using cfg's key prefix and TTL.
func NewRedisSnapshot(kv KV, cfg config.RedisConfig) *RedisSnapshot {
	return &RedisSnapshot{
		kv:     kv,
		prefix: cfg.SnapshotKeyPrefix,
		ttl:    cfg.SnapshotTTL,
		isMiss: redis.IsNilError,
		logger: slog.Default().With("component", "source-redis"),
	}
}

func (s *RedisSnapshot) Name() string { return NameRedis }

func (s *RedisSnapshot) key(factory string) string {
	if factory == "" {
		factory = "_all"
	}
	return s.prefix + factory
}

// Fetch returns the stored snapshot for q.Factory, or ErrDatasetNotFound.
func (s *RedisSnapshot) Fetch(ctx context.Context, q Query) ([]record.Record, error) {
	key := s.key(q.Factory)
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if s.isMiss(err) {
			return nil, fmt.Errorf("snapshot %s: %w", key, apperrors.ErrDatasetNotFound)
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", key, err)
	}
	var records []record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

// Save stores records as the snapshot for factory.
func (s *RedisSnapshot) Save(ctx context.Context, factory string, records []record.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	key := s.key(factory)
	if err := s.kv.Set(ctx, key, data, s.ttl); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", key, err)
	}
	s.logger.Debug("snapshot saved", "key", key, "rows", len(records), "bytes", len(data))
	return nil
}

// Invalidate drops the snapshot for factory.
func (s *RedisSnapshot) Invalidate(ctx context.Context, factory string) error {
	return s.kv.Del(ctx, s.key(factory))
}

// Factories lists the factories that currently have a snapshot.
func (s *RedisSnapshot) Factories(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, s.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	factories := make([]string, 0, len(keys))
	for _, k := range keys {
		factories = append(factories, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(factories)
	return factories, nil
}
