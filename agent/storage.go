package agent

import (
	"context"
	"fmt"

	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/persistence/memory"
	"github.com/mohitkumar/mediaflow/persistence/postgres"
	"github.com/mohitkumar/mediaflow/persistence/redis"
	"go.uber.org/zap"
)

// NewStorage builds the record store named by StorageType and puts the
// queues named by QueueType in front of it.
func NewStorage(ctx context.Context, conf config.Config) (*persistence.Storage, error) {
	redisConf := redis.Config{
		Addrs:          conf.RedisConfig.Addrs,
		Namespace:      conf.RedisConfig.Namespace,
		Password:       conf.RedisConfig.Password,
		PartitionCount: conf.RedisConfig.PartitionCount,
	}
	var storage *persistence.Storage
	switch conf.StorageType {
	case config.STORAGE_TYPE_INMEM, "":
		storage = memory.NewStorage()
	case config.STORAGE_TYPE_REDIS:
		if err := redis.Ping(ctx, redisConf); err != nil {
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}
		storage = redis.NewStorage(redisConf)
	case config.STORAGE_TYPE_POSTGRES:
		store, err := postgres.Connect(ctx, conf.PostgresConfig.DSN, conf.PostgresConfig.MaxConns)
		if err != nil {
			return nil, err
		}
		storage = &persistence.Storage{
			Jobs:     store,
			Drafts:   store,
			Modules:  store,
			Projects: store,
		}
		storage.AddCloser(store.Close)
	default:
		return nil, fmt.Errorf("unknown storage type %s", conf.StorageType)
	}

	switch conf.QueueType {
	case config.QUEUE_TYPE_REDIS:
		if conf.StorageType != config.STORAGE_TYPE_REDIS {
			queue, delayQueue, closeFn := redis.NewQueues(redisConf)
			storage.Queue, storage.DelayQueue = queue, delayQueue
			storage.AddCloser(closeFn)
		}
	case config.QUEUE_TYPE_INMEM, "":
		storage.Queue, storage.DelayQueue = memory.NewQueue(), memory.NewDelayQueue()
	default:
		return nil, fmt.Errorf("unknown queue type %s", conf.QueueType)
	}
	logger.Info("storage ready", zap.String("storage", string(conf.StorageType)), zap.String("queue", string(conf.QueueType)))
	return storage, nil
}
