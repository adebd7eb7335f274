package cloudcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
)

// CacheType names a second-level UserAccess store backend.
type CacheType string

const (
	// CacheTypeMemory keeps entries in this process only.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeNATS keeps entries in a NATS JetStream key-value bucket shared
	// by every process pointed at it.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeTiered reads through a memory store in front of a NATS bucket.
	CacheTypeTiered CacheType = "tiered"

	// CacheTypeNone stores nothing.
	CacheTypeNone CacheType = "none"
)

// Static errors for err113 compliance.
var (
	ErrNATSConfigRequired    = errors.New("NATS configuration required for NATS cache")
	ErrUnsupportedCacheType  = errors.New("unsupported cache type")
	ErrCacheDisabled         = errors.New("cache disabled")
	ErrKeyNotFoundInAnyCache = errors.New("key not found in any cache")
	ErrNegativeCacheTTL      = errors.New("cache TTL must not be negative")
)

// CacheConfig selects and sizes a store. The zero Type means memory.
type CacheConfig struct {
	Type CacheType

	// Memory sizes the memory store, alone or as the first tier.
	Memory *MemoryCacheConfig

	// NATS locates the bucket for the nats and tiered types.
	NATS *NATSKVConfig

	// Options applies to any backend; nil means DefaultCacheOptions.
	Options *CacheOptions
}

// MemoryCacheConfig sizes a memory store.
type MemoryCacheConfig struct {
	MaxSize int
}

// DefaultCacheConfig returns a memory store with default sizing.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type:    CacheTypeMemory,
		Memory:  &MemoryCacheConfig{MaxSize: constants.DefaultCacheSize},
		Options: DefaultCacheOptions(),
	}
}

// EffectiveOptions returns Options, or the defaults when unset.
func (c *CacheConfig) EffectiveOptions() *CacheOptions {
	if c == nil || c.Options == nil {
		return DefaultCacheOptions()
	}

	return c.Options
}

// Validate checks the configuration without connecting to anything.
func (c *CacheConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.EffectiveOptions().TTL < 0 {
		return ErrNegativeCacheTTL
	}

	switch c.Type {
	case "", CacheTypeMemory, CacheTypeNone:
		return nil
	case CacheTypeNATS, CacheTypeTiered:
		if c.NATS == nil {
			return ErrNATSConfigRequired
		}

		return c.NATS.validate()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCacheType, c.Type)
	}
}

// NewCacheFromConfig opens the store config describes. A nil config yields
// the default memory store.
func NewCacheFromConfig(config *CacheConfig) (Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	err := config.Validate()
	if err != nil {
		return nil, err
	}

	switch config.Type {
	case CacheTypeNone:
		return NewNoOpCache(), nil
	case CacheTypeNATS:
		return config.openNATS()
	case CacheTypeTiered:
		shared, err := config.openNATS()
		if err != nil {
			return nil, err
		}

		return NewCacheChain(config.openMemory(), shared), nil
	default:
		return config.openMemory(), nil
	}
}

func (c *CacheConfig) openMemory() *MemoryCache {
	return NewMemoryCacheFromConfig(c.Memory)
}

func (c *CacheConfig) openNATS() (*NATSKVCache, error) {
	bucket := *c.NATS
	if bucket.KeyPrefix == "" {
		bucket.KeyPrefix = c.EffectiveOptions().KeyPrefix
	}

	return NewNATSKVCache(&bucket)
}

// NewMemoryCacheFromConfig creates a memory store; nil means default sizing.
func NewMemoryCacheFromConfig(config *MemoryCacheConfig) *MemoryCache {
	if config == nil {
		return NewMemoryCache(constants.DefaultCacheSize)
	}

	return NewMemoryCache(config.MaxSize)
}

// NoOpCache never holds anything.
type NoOpCache struct{}

// NewNoOpCache creates a store that discards every write.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always fails with ErrCacheDisabled.
func (*NoOpCache) Get(context.Context, string) (*CacheEntry, error) {
	return nil, ErrCacheDisabled
}

// Set discards entry.
func (*NoOpCache) Set(context.Context, string, *CacheEntry) error { return nil }

// Delete is a no-op.
func (*NoOpCache) Delete(context.Context, string) error { return nil }

// Clear is a no-op.
func (*NoOpCache) Clear(context.Context) error { return nil }

// Has always reports false.
func (*NoOpCache) Has(context.Context, string) bool { return false }

// CacheBuilder assembles a CacheConfig fluently.
type CacheBuilder struct {
	config CacheConfig
}

// NewCacheBuilder starts from a memory store with default options.
func NewCacheBuilder() *CacheBuilder {
	return &CacheBuilder{config: CacheConfig{Type: CacheTypeMemory}}
}

// WithType selects the backend.
func (b *CacheBuilder) WithType(cacheType CacheType) *CacheBuilder {
	b.config.Type = cacheType

	return b
}

// WithMemoryConfig bounds the memory store.
func (b *CacheBuilder) WithMemoryConfig(maxSize int) *CacheBuilder {
	b.config.Memory = &MemoryCacheConfig{MaxSize: maxSize}

	return b
}

// WithNATSConfig locates the NATS bucket.
func (b *CacheBuilder) WithNATSConfig(config *NATSKVConfig) *CacheBuilder {
	b.config.NATS = config

	return b
}

// WithOptions replaces every common option.
func (b *CacheBuilder) WithOptions(options *CacheOptions) *CacheBuilder {
	b.config.Options = options

	return b
}

// WithTTL caps how long entries are kept.
func (b *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	b.options().TTL = ttl

	return b
}

// WithKeyPrefix namespaces the keys this process writes.
func (b *CacheBuilder) WithKeyPrefix(prefix string) *CacheBuilder {
	b.options().KeyPrefix = prefix

	return b
}

func (b *CacheBuilder) options() *CacheOptions {
	if b.config.Options == nil {
		b.config.Options = DefaultCacheOptions()
	}

	return b.config.Options
}

// Config returns a copy of the configuration built so far.
func (b *CacheBuilder) Config() *CacheConfig {
	config := b.config

	return &config
}

// Build opens the configured store.
func (b *CacheBuilder) Build() (Cache, error) {
	return NewCacheFromConfig(b.Config())
}

// CacheChain layers stores from fastest to slowest. Reads stop at the first
// hit and backfill the faster levels; writes go to every level.
type CacheChain struct {
	caches []Cache
}

// NewCacheChain layers caches in the order given.
func NewCacheChain(caches ...Cache) *CacheChain {
	return &CacheChain{caches: caches}
}

// Get returns the first hit.
func (c *CacheChain) Get(ctx context.Context, key string) (*CacheEntry, error) {
	for level, cache := range c.caches {
		entry, err := cache.Get(ctx, key)
		if err != nil {
			continue
		}

		for _, faster := range c.caches[:level] {
			_ = faster.Set(ctx, key, entry)
		}

		return entry, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotFoundInAnyCache, key)
}

// Set writes entry to every level, joining the failures.
func (c *CacheChain) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return c.each(func(cache Cache) error { return cache.Set(ctx, key, entry) })
}

// Delete removes key from every level, joining the failures.
func (c *CacheChain) Delete(ctx context.Context, key string) error {
	return c.each(func(cache Cache) error { return cache.Delete(ctx, key) })
}

// Clear empties every level, joining the failures.
func (c *CacheChain) Clear(ctx context.Context) error {
	return c.each(func(cache Cache) error { return cache.Clear(ctx) })
}

// Has reports whether any level holds key.
func (c *CacheChain) Has(ctx context.Context, key string) bool {
	for _, cache := range c.caches {
		if cache.Has(ctx, key) {
			return true
		}
	}

	return false
}

// Close closes every level that holds a connection.
func (c *CacheChain) Close() error {
	return c.each(func(cache Cache) error {
		closer, ok := cache.(interface{ Close() error })
		if !ok {
			return nil
		}

		return closer.Close()
	})
}

func (c *CacheChain) each(fn func(Cache) error) error {
	errs := make([]error, 0, len(c.caches))
	for _, cache := range c.caches {
		errs = append(errs, fn(cache))
	}

	return errors.Join(errs...)
}
