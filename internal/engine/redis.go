package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/rueidis"
)

// RedisConfig holds connection parameters for the Redis search backend.
type RedisConfig struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisEngine implements Engine with the Redis Query Engine (FT.*) over
// hashes keyed <prefix><index>:<id>.
type RedisEngine struct {
	client rueidis.Client
	prefix string

	mu    sync.Mutex
	known map[string]bool
}

var (
	_ Engine = (*RedisEngine)(nil)
	_ Pinger = (*RedisEngine)(nil)
)

// NewRedisEngine connects to Redis via rueidis.
func NewRedisEngine(cfg RedisConfig) (*RedisEngine, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH parsing expects the RESP2 array layout
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return newRedisEngine(client, cfg.KeyPrefix), nil
}

func newRedisEngine(client rueidis.Client, prefix string) *RedisEngine {
	return &RedisEngine{client: client, prefix: prefix, known: make(map[string]bool)}
}

func (e *RedisEngine) indexName(index string) string {
	return e.prefix + index
}

func (e *RedisEngine) keyPrefix(index string) string {
	return e.prefix + index + ":"
}

// Ping checks connectivity.
func (e *RedisEngine) Ping(ctx context.Context) error {
	if err := e.client.Do(ctx, e.client.B().Ping().Build()).Error(); err != nil {
		return &OpError{Op: "PING", Err: err}
	}
	return nil
}

// EnsureIndex creates the FT index over the collection's hashes.
// An existing index is left untouched.
func (e *RedisEngine) EnsureIndex(ctx context.Context, index string, fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("index %s: at least one field is required", index)
	}

	args := []string{e.indexName(index), "ON", "HASH", "PREFIX", "1", e.keyPrefix(index), "SCHEMA"}
	for _, f := range fields {
		args = append(args, f, "TEXT")
	}

	cmd := e.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "index already exists") {
		return &OpError{Op: "FT.CREATE", Index: index, Err: err}
	}

	e.mu.Lock()
	e.known[index] = true
	e.mu.Unlock()
	return nil
}

// DropIndex removes the FT index and its documents.
func (e *RedisEngine) DropIndex(ctx context.Context, index string) error {
	cmd := e.client.B().Arbitrary("FT.DROPINDEX").Args(e.indexName(index), "DD").Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil && !isUnknownIndex(err) {
		return &OpError{Op: "FT.DROPINDEX", Index: index, Err: err}
	}

	e.mu.Lock()
	delete(e.known, index)
	e.mu.Unlock()
	return nil
}

// Index writes the document hash, creating the FT index from the
// document's fields the first time a collection is seen.
func (e *RedisEngine) Index(ctx context.Context, index, id string, doc Document) error {
	e.mu.Lock()
	known := e.known[index]
	e.mu.Unlock()

	fields := make([]string, 0, len(doc))
	for k := range doc {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	if !known && len(fields) > 0 {
		if err := e.EnsureIndex(ctx, index, fields); err != nil {
			return err
		}
	}

	cmd := e.client.B().Hset().Key(e.keyPrefix(index) + id).FieldValue()
	for _, f := range fields {
		cmd = cmd.FieldValue(f, fmt.Sprint(doc[f]))
	}
	if err := e.client.Do(ctx, cmd.Build()).Error(); err != nil {
		return &OpError{Op: "HSET", Index: index, Err: err}
	}
	return nil
}

// Delete removes the document hash.
func (e *RedisEngine) Delete(ctx context.Context, index, id string) error {
	cmd := e.client.B().Del().Key(e.keyPrefix(index) + id).Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil {
		return &OpError{Op: "DEL", Index: index, Err: err}
	}
	return nil
}

// Search runs FT.SEARCH with the query terms OR-combined and NOCONTENT, so
// only keys come back.
func (e *RedisEngine) Search(ctx context.Context, index, query string, from, size int) (*Hits, error) {
	tokens := unique(Tokenize(query))
	if len(tokens) == 0 || size <= 0 {
		return &Hits{IDs: []string{}}, nil
	}
	if from < 0 {
		from = 0
	}

	expr := "(" + strings.Join(tokens, "|") + ")"
	cmd := e.client.B().Arbitrary("FT.SEARCH").Args(
		e.indexName(index), expr,
		"NOCONTENT",
		"LIMIT", strconv.Itoa(from), strconv.Itoa(size),
		"DIALECT", "2",
	).Build()

	raw, err := e.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return &Hits{IDs: []string{}}, nil
		}
		return nil, &OpError{Op: "FT.SEARCH", Index: index, Err: err}
	}

	return parseNoContent(raw, e.keyPrefix(index))
}

// parseNoContent reads [total, key1, key2, ...].
func parseNoContent(raw []rueidis.RedisMessage, keyPrefix string) (*Hits, error) {
	if len(raw) == 0 {
		return &Hits{IDs: []string{}}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	ids := make([]string, 0, len(raw)-1)
	for _, m := range raw[1:] {
		key, err := m.ToString()
		if err != nil {
			continue
		}
		ids = append(ids, strings.TrimPrefix(key, keyPrefix))
	}
	return &Hits{IDs: ids, Total: int(total)}, nil
}

// Close shuts down the client.
func (e *RedisEngine) Close() error {
	e.client.Close()
	return nil
}

func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index")
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), substr)
}
