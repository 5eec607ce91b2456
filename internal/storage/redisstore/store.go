package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mjscore/internal/ports"
)

// Store keeps table blobs in Redis under "<prefix>:<table>:<key>".
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Open connects to the Redis server at redisURL (redis[s]://[user:password@]host:port/db).
// ttl <= 0 keeps blobs forever.
func Open(ctx context.Context, redisURL, prefix string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, prefix, ttl), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "mjscore"
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: max(ttl, 0)}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// Table returns the blob store of one score table.
func (s *Store) Table(tableID string) *TableStore {
	return &TableStore{store: s, tableID: tableID}
}

// TableStore is the blob store of a single table.
type TableStore struct {
	store   *Store
	tableID string
}

var (
	_ ports.BlobStore   = (*TableStore)(nil)
	_ ports.BatchSetter = (*TableStore)(nil)
)

func (t *TableStore) key(key string) string {
	return t.store.prefix + ":" + t.tableID + ":" + key
}

func (t *TableStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := t.store.rdb.Get(ctx, t.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return raw, true, nil
}

func (t *TableStore) Set(ctx context.Context, key string, blob []byte) error {
	if err := t.store.rdb.Set(ctx, t.key(key), blob, t.store.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetMany writes every blob in one MULTI/EXEC round trip.
func (t *TableStore) SetMany(ctx context.Context, blobs map[string][]byte) error {
	_, err := t.store.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, blob := range blobs {
			pipe.Set(ctx, t.key(key), blob, t.store.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set batch: %w", err)
	}
	return nil
}

// parseRedisURL accepts redis:// and rediss:// URLs with optional user, password, db and
// query options. rediss enables TLS.
func parseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
