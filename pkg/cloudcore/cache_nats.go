package cloudcore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Static errors for err113 compliance.
var (
	ErrNATSURLRequired    = errors.New("NATS URL is required")
	ErrNATSBucketRequired = errors.New("NATS KV bucket is required")
)

// NATSKVConfig configures a NATS JetStream key-value store.
type NATSKVConfig struct {
	// URL of the NATS server, e.g. "nats://127.0.0.1:4222".
	URL string
	// Bucket is the KV bucket name. It is created when missing.
	Bucket string
	// TTL is the bucket-wide maximum age of an entry. 0 keeps entries until replaced.
	TTL time.Duration
	// Options are passed to nats.Connect.
	Options []nats.Option
	// KeyPrefix namespaces keys within the bucket.
	KeyPrefix string
}

func (c *NATSKVConfig) validate() error {
	if c.URL == "" {
		return ErrNATSURLRequired
	}

	if c.Bucket == "" {
		return ErrNATSBucketRequired
	}

	return nil
}

// kvBucket is the subset of a KV bucket the cache uses.
type kvBucket interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

// natsBucket adapts nats.KeyValue to kvBucket.
type natsBucket struct {
	kv nats.KeyValue
}

func (b natsBucket) Get(key string) ([]byte, error) {
	entry, err := b.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, key)
		}

		return nil, fmt.Errorf("getting %s from NATS KV: %w", key, err)
	}

	return entry.Value(), nil
}

func (b natsBucket) Put(key string, value []byte) error {
	_, err := b.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("putting %s to NATS KV: %w", key, err)
	}

	return nil
}

func (b natsBucket) Delete(key string) error {
	err := b.kv.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from NATS KV: %w", key, err)
	}

	return nil
}

func (b natsBucket) Keys() ([]string, error) {
	keys, err := b.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing NATS KV keys: %w", err)
	}

	return keys, nil
}

// NATSKVCache stores entries in a NATS JetStream KV bucket so several
// processes can share UserAccess values.
type NATSKVCache struct {
	conn   *nats.Conn
	bucket kvBucket
	prefix string
	now    func() time.Time
}

// NewNATSKVCache connects to NATS and opens, or creates, the configured bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	err := config.validate()
	if err != nil {
		return nil, err
	}

	conn, err := nats.Connect(config.URL, config.Options...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	kv, err := js.KeyValue(config.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  config.Bucket,
			TTL:     config.TTL,
			History: 1,
		})
	}

	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("opening NATS KV bucket %s: %w", config.Bucket, err)
	}

	cache := newNATSKVCache(natsBucket{kv: kv}, config.KeyPrefix)
	cache.conn = conn

	return cache, nil
}

func newNATSKVCache(bucket kvBucket, prefix string) *NATSKVCache {
	return &NATSKVCache{
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Close drains the NATS connection.
func (c *NATSKVCache) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Drain()
	if err != nil {
		return fmt.Errorf("draining NATS connection: %w", err)
	}

	return nil
}

// encodeKey maps arbitrary keys onto the NATS KV key alphabet.
func (c *NATSKVCache) encodeKey(key string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(key))
	if c.prefix == "" {
		return encoded
	}

	return c.prefix + "." + encoded
}

// Get implements Cache.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	data, err := c.bucket.Get(c.encodeKey(key))
	if err != nil {
		return nil, err
	}

	var entry CacheEntry

	err = json.Unmarshal(data, &entry)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}

	if entry.Expired(c.now()) {
		_ = c.Delete(ctx, key)

		return nil, fmt.Errorf("%w: %s", ErrCacheEntryExpired, key)
	}

	return &entry, nil
}

// Set implements Cache.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	stored := *entry
	if stored.StoredAt.IsZero() {
		stored.StoredAt = c.now()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	return c.bucket.Put(c.encodeKey(key), data)
}

// Delete implements Cache.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	return c.bucket.Delete(c.encodeKey(key))
}

// Clear deletes every key under this cache's prefix.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	keys, err := c.bucket.Keys()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if c.prefix != "" && !strings.HasPrefix(key, c.prefix+".") {
			continue
		}

		err = c.bucket.Delete(key)
		if err != nil {
			return err
		}
	}

	return nil
}

// Has implements Cache.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}
