// Package valuecache holds the most recently decoded row for each
// connection, keyed by "var::connection", so the "values" IPC method
// can answer without re-reading the sink or touching live connection
// state. A Memory backend is the default; Redis is available for a
// logger sharing cached values with another process.
package valuecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/variable"
)

// Cache publishes and serves the latest decoded value of every tag.
type Cache interface {
	// Publish records one tick's decoded row for connectionName,
	// keyed per-tag as "var::connection".
	Publish(ctx context.Context, connectionName string, row map[string]any) error
	// Value returns the last published value for varName on
	// connectionName, or ok=false if nothing has been published yet.
	Value(ctx context.Context, connectionName, varName string) (value any, ok bool)
}

// Memory is the default in-process Cache: a plain map guarded by a
// mutex, adequate for a single jidld instance.
type Memory struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemory returns a ready-to-use Memory cache.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

func (m *Memory) Publish(_ context.Context, connectionName string, row map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for varName, v := range row {
		m.values[variable.Qualifier{Var: varName, Connection: connectionName}.String()] = v
	}
	return nil
}

func (m *Memory) Value(_ context.Context, connectionName, varName string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[variable.Qualifier{Var: varName, Connection: connectionName}.String()]
	return v, ok
}

// Redis is a Cache backend shared across processes, for deployments
// where the "values" method is served by something other than the
// logger process itself. Each tag is stored as its JSON-encoded value
// under the "jidl:value:" namespace with the ttl given to NewRedis (no
// expiry when it is 0): a published value stays current until
// overwritten by the next tick or until that ttl runs out.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds a Redis-backed Cache. ttl is the time a published
// value survives without being refreshed by a later tick; 0 means no
// expiry, matching the "latest known value" semantics of spec.md §4.6.
func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSinkUnavailable, "redis value cache ping")
	}

	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Publish(ctx context.Context, connectionName string, row map[string]any) error {
	pipe := r.client.Pipeline()
	for varName, v := range row {
		key := redisKey(connectionName, varName)
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key, encoded, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Value(ctx context.Context, connectionName, varName string) (any, bool) {
	raw, err := r.client.Get(ctx, redisKey(connectionName, varName)).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Close releases the underlying Redis connection pool.
func (r *Redis) Close() error { return r.client.Close() }

func redisKey(connectionName, varName string) string {
	return "jidl:value:" + variable.Qualifier{Var: varName, Connection: connectionName}.String()
}
