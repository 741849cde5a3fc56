package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/observability"
)

// ResultCache stores extraction results as JSON on top of a Client.
type ResultCache struct {
	client Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewResultCache creates a result cache. A zero ttl keeps entries until evicted.
func NewResultCache(client Client, ttl time.Duration, logger *observability.Logger) *ResultCache {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("cache"),
	}
}

type cachedResult struct {
	*domain.ExtractionResult
	DurationMS int64 `json:"duration_ms"`
}

// Get returns the cached result or ErrCacheMiss.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.ExtractionResult, error) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	entry := cachedResult{ExtractionResult: &domain.ExtractionResult{}}
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Dropping undecodable cache entry")
		_ = c.client.Delete(ctx, key)
		return nil, ErrCacheMiss
	}
	entry.Duration = time.Duration(entry.DurationMS) * time.Millisecond
	return entry.ExtractionResult, nil
}

// Put stores result under key.
func (c *ResultCache) Put(ctx context.Context, key string, result *domain.ExtractionResult) error {
	data, err := json.Marshal(cachedResult{
		ExtractionResult: result,
		DurationMS:       result.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

// Close closes the underlying client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

// Options selects and configures a backend.
type Options struct {
	Driver     string // none, memory, redis or bolt
	TTL        time.Duration
	MaxEntries int
	Redis      RedisConfig
	BoltPath   string
}

// New opens the configured backend. It returns nil and no error for driver "none".
func New(ctx context.Context, opts Options, logger *observability.Logger) (*ResultCache, error) {
	var (
		client Client
		err    error
	)

	switch opts.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		client = NewMemoryClient(opts.MaxEntries)
	case "redis":
		client, err = NewRedisClient(ctx, opts.Redis)
	case "bolt":
		client, err = NewBoltClient(opts.BoltPath)
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown cache driver %q", opts.Driver), nil)
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return nil, de
	}
	if err != nil {
		return nil, domain.StorageError("Failed to open result cache", err)
	}
	return NewResultCache(client, opts.TTL, logger), nil
}
