package redis

import (
	"context"
	"strconv"
	"testing"

	"wallet-ledger/config"
	"wallet-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedisConfig(t *testing.T, s *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	return config.RedisConfig{Enabled: true, Host: s.Host(), Port: port, PoolSize: 2}
}

func TestNewClient_WritesProbe(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewClient(context.Background(), testRedisConfig(t, s), logger.New("disabled", false))
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, s.Exists(healthProbe))
	assert.Positive(t, s.TTL(healthProbe))
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := testRedisConfig(t, s)
	s.Close()

	_, err := NewClient(context.Background(), cfg, logger.New("disabled", false))
	assert.ErrorContains(t, err, "ping")
	assert.ErrorContains(t, err, cfg.Addr())
}

func TestHealthCheck(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := NewClient(context.Background(), testRedisConfig(t, s), logger.New("disabled", false))
	require.NoError(t, err)
	defer client.Close()

	hc := NewHealthCheck(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))

	s.SetError("READONLY You can't write against a read only replica.")
	assert.Error(t, hc.Ping(context.Background()))
	s.SetError("")
	assert.NoError(t, hc.Ping(context.Background()))
}
