package repositories

import (
	"context"
	"fmt"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"
	"duocall/internal/infrastructure/repositories/memory"
	redisrepo "duocall/internal/infrastructure/repositories/redis"
	"duocall/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	policy      domain.MatchPolicy
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	policy, err := domain.ParseMatchPolicy(cfg.Matching.Policy)
	if err != nil {
		return nil, err
	}

	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		policy:   policy,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.ClientOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Infow("using Redis room matcher", "policy", policy)
		}
	}

	if !factory.useRedis {
		logger.Infow("using memory repositories", "policy", policy)
	}

	return factory, nil
}

// CreateIdentityRegistry is always in memory: channels live in this process.
func (f *RepositoryFactory) CreateIdentityRegistry() ports.IdentityRegistry {
	return memory.NewIdentityRegistry()
}

func (f *RepositoryFactory) CreateRoomMatcher() ports.RoomMatcher {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRoomMatcher(f.redisClient, f.policy)
	}
	return memory.NewRoomMatcher(f.policy)
}

// RedisClient is nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}
