package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// loadStored returns a usable UserAccess from the second-level store, or nil.
// Store failures are logged and treated as a miss.
func (b *Broker) loadStored(ctx context.Context, key string) *cloudcore.UserAccess {
	if b.store == nil {
		return nil
	}

	entry, err := b.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cloudcore.ErrCacheKeyNotFound) &&
			!errors.Is(err, cloudcore.ErrCacheEntryExpired) &&
			!errors.Is(err, cloudcore.ErrCacheDisabled) {
			b.logger.Warn("UserAccess store read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}

		return nil
	}

	var access cloudcore.UserAccess

	err = json.Unmarshal(entry.Data, &access)
	if err != nil {
		b.logger.Warn("Discarding unreadable stored UserAccess", map[string]interface{}{
			"error": err.Error(),
		})
		b.deleteStored(ctx, key)

		return nil
	}

	if b.isExpired(&access) {
		return nil
	}

	b.logger.Debug("Using stored UserAccess", map[string]interface{}{
		"expires": access.Token.Expires,
	})

	return &access
}

func (b *Broker) saveStored(ctx context.Context, key string, access *cloudcore.UserAccess) {
	if b.store == nil {
		return
	}

	data, err := json.Marshal(access)
	if err != nil {
		b.logger.Warn("Failed to encode UserAccess for store", map[string]interface{}{
			"error": err.Error(),
		})

		return
	}

	now := b.clock.Now()
	expiresAt := access.Token.Expires

	if b.storeTTL > 0 && now.Add(b.storeTTL).Before(expiresAt) {
		expiresAt = now.Add(b.storeTTL)
	}

	err = b.store.Set(ctx, key, &cloudcore.CacheEntry{
		Data:      data,
		ExpiresAt: expiresAt,
		StoredAt:  now,
	})
	if err != nil {
		b.logger.Warn("UserAccess store write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (b *Broker) deleteStored(ctx context.Context, key string) {
	if b.store == nil {
		return
	}

	err := b.store.Delete(ctx, key)
	if err != nil {
		b.logger.Warn("UserAccess store delete failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (b *Broker) isExpired(access *cloudcore.UserAccess) bool {
	return userAccessExpired(b.clock, b.expiryBuffer)(access)
}
