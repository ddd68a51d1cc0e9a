package repositories

import (
	"context"
	"testing"

	"duocall/internal/core/domain"
	"duocall/internal/infrastructure/repositories/memory"
	"duocall/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_MemoryFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Matching.Policy = string(domain.PolicySingleSlot)
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"
	cfg.Redis.PoolSize = 1

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Nil(t, f.RedisClient())
	assert.NoError(t, f.HealthCheck(context.Background()))

	matcher := f.CreateRoomMatcher()
	assert.IsType(t, &memory.RoomMatcher{}, matcher)
	assert.Equal(t, domain.PolicySingleSlot, matcher.Policy())
	assert.IsType(t, &memory.IdentityRegistry{}, f.CreateIdentityRegistry())
}

func TestRepositoryFactory_RejectsUnknownPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Matching.Policy = "round_robin"

	_, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	assert.Error(t, err)
}
