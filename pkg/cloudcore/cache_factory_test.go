package cloudcore_test

import (
	"testing"
	"time"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   *cloudcore.CacheConfig
		wantType interface{}
		wantErr  error
	}{
		{
			name:     "nil config defaults to memory",
			config:   nil,
			wantType: &cloudcore.MemoryCache{},
		},
		{
			name:     "memory",
			config:   &cloudcore.CacheConfig{Type: cloudcore.CacheTypeMemory, Memory: &cloudcore.MemoryCacheConfig{MaxSize: 5}},
			wantType: &cloudcore.MemoryCache{},
		},
		{
			name:     "memory without sizing",
			config:   &cloudcore.CacheConfig{Type: cloudcore.CacheTypeMemory},
			wantType: &cloudcore.MemoryCache{},
		},
		{
			name:     "none",
			config:   &cloudcore.CacheConfig{Type: cloudcore.CacheTypeNone},
			wantType: &cloudcore.NoOpCache{},
		},
		{
			name:    "nats without configuration",
			config:  &cloudcore.CacheConfig{Type: cloudcore.CacheTypeNATS},
			wantErr: cloudcore.ErrNATSConfigRequired,
		},
		{
			name:    "nats without url",
			config:  &cloudcore.CacheConfig{Type: cloudcore.CacheTypeNATS, NATS: &cloudcore.NATSKVConfig{Bucket: "tokens"}},
			wantErr: cloudcore.ErrNATSURLRequired,
		},
		{
			name:    "nats without bucket",
			config:  &cloudcore.CacheConfig{Type: cloudcore.CacheTypeNATS, NATS: &cloudcore.NATSKVConfig{URL: "nats://127.0.0.1:4222"}},
			wantErr: cloudcore.ErrNATSBucketRequired,
		},
		{
			name:     "zero type is memory",
			config:   &cloudcore.CacheConfig{},
			wantType: &cloudcore.MemoryCache{},
		},
		{
			name:    "tiered without configuration",
			config:  &cloudcore.CacheConfig{Type: cloudcore.CacheTypeTiered},
			wantErr: cloudcore.ErrNATSConfigRequired,
		},
		{
			name:    "negative ttl",
			config:  &cloudcore.CacheConfig{Options: &cloudcore.CacheOptions{TTL: -time.Second}},
			wantErr: cloudcore.ErrNegativeCacheTTL,
		},
		{
			name:    "unsupported",
			config:  &cloudcore.CacheConfig{Type: "redis"},
			wantErr: cloudcore.ErrUnsupportedCacheType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache, err := cloudcore.NewCacheFromConfig(tt.config)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, cache)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, tt.wantType, cache)
		})
	}
}

func TestCacheBuilder(t *testing.T) {
	t.Parallel()

	t.Run("explicit options", func(t *testing.T) {
		t.Parallel()

		options := &cloudcore.CacheOptions{KeyPrefix: "tokens"}

		builder := cloudcore.NewCacheBuilder().
			WithType(cloudcore.CacheTypeMemory).
			WithMemoryConfig(3).
			WithOptions(options)

		config := builder.Config()
		assert.Equal(t, cloudcore.CacheTypeMemory, config.Type)
		assert.Equal(t, 3, config.Memory.MaxSize)
		assert.Same(t, options, config.EffectiveOptions())

		cache, err := builder.Build()
		require.NoError(t, err)
		assert.IsType(t, &cloudcore.MemoryCache{}, cache)
	})

	t.Run("ttl and prefix start from the defaults", func(t *testing.T) {
		t.Parallel()

		config := cloudcore.NewCacheBuilder().
			WithTTL(time.Minute).
			WithKeyPrefix("cli").
			Config()

		options := config.EffectiveOptions()
		assert.Equal(t, time.Minute, options.TTL)
		assert.Equal(t, "cli", options.KeyPrefix)
		assert.Equal(t, cloudcore.DefaultCacheOptions().MaxSize, options.MaxSize)
	})

	t.Run("config is a copy", func(t *testing.T) {
		t.Parallel()

		builder := cloudcore.NewCacheBuilder()
		config := builder.Config()
		config.Type = cloudcore.CacheTypeNone

		assert.Equal(t, cloudcore.CacheTypeMemory, builder.Config().Type)
	})

	t.Run("build validates", func(t *testing.T) {
		t.Parallel()

		_, err := cloudcore.NewCacheBuilder().WithType(cloudcore.CacheTypeNATS).WithNATSConfig(nil).Build()
		require.ErrorIs(t, err, cloudcore.ErrNATSConfigRequired)
	})
}

func TestCacheConfig_Validate(t *testing.T) {
	t.Parallel()

	var nilConfig *cloudcore.CacheConfig

	require.NoError(t, nilConfig.Validate())
	require.NoError(t, (&cloudcore.CacheConfig{Type: cloudcore.CacheTypeNone}).Validate())
	require.NoError(t, (&cloudcore.CacheConfig{
		Type: cloudcore.CacheTypeTiered,
		NATS: &cloudcore.NATSKVConfig{URL: "nats://127.0.0.1:4222", Bucket: "tokens"},
	}).Validate())

	err := (&cloudcore.CacheConfig{
		Type: cloudcore.CacheTypeTiered,
		NATS: &cloudcore.NATSKVConfig{URL: "nats://127.0.0.1:4222"},
	}).Validate()
	require.ErrorIs(t, err, cloudcore.ErrNATSBucketRequired)
}

func TestCacheConfig_EffectiveOptions(t *testing.T) {
	t.Parallel()

	var nilConfig *cloudcore.CacheConfig

	assert.Equal(t, cloudcore.DefaultCacheOptions(), nilConfig.EffectiveOptions())
	assert.Equal(t, cloudcore.DefaultCacheOptions(), (&cloudcore.CacheConfig{}).EffectiveOptions())
	assert.Equal(t, "useraccess", cloudcore.DefaultCacheConfig().EffectiveOptions().KeyPrefix)
}
