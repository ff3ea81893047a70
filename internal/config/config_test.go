package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
)

type testConfig struct {
	Log          config.Log
	Store        config.Store
	Acceleration config.Acceleration
	Kafka        config.Kafka
}

func TestNew(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		cfg, err := config.New[testConfig]()
		require.NoError(t, err)

		assert.Equal(t, config.LogFormatJSON, cfg.Log.Format)
		assert.Equal(t, slog.LevelInfo, cfg.Log.Level)

		assert.Equal(t, config.StoreDriverPostgres, cfg.Store.Driver)
		assert.Empty(t, cfg.Store.Table)
		assert.Equal(t, "us-east-1", cfg.Store.Region)
		assert.Equal(t, 3, cfg.Store.MaxRetries)
		assert.Equal(t, 3*time.Second, cfg.Store.ConnectTimeout)
		assert.Equal(t, 5*time.Second, cfg.Store.RequestTimeout)

		assert.False(t, cfg.Acceleration.Configured())
		assert.Equal(t, 50, cfg.Acceleration.PoolSize)
		assert.False(t, cfg.Kafka.Enabled())
	})

	t.Run("Should read overrides", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "DynamoDB")
		t.Setenv("TABLE_NAME", "Products")
		t.Setenv("AWS_REGION", "eu-west-1")
		t.Setenv("ACCELERATION_ENDPOINT", "cache:6379")
		t.Setenv("KAFKA_ADDRESSES", "k1:9092,k2:9092")
		t.Setenv("LOG_FORMAT", "text")

		cfg, err := config.New[testConfig]()
		require.NoError(t, err)

		assert.Equal(t, config.StoreDriverDynamoDB, cfg.Store.Driver)
		assert.Equal(t, "Products", cfg.Store.Table)
		assert.Equal(t, "eu-west-1", cfg.Acceleration.Region)
		assert.True(t, cfg.Acceleration.Configured())
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Addresses)
		assert.Equal(t, config.LogFormatText, cfg.Log.Format)
	})

	t.Run("Should reject unknown driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "cassandra")

		_, err := config.New[testConfig]()
		assert.Error(t, err)
	})
}
