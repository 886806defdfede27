package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/persistence"
	"go.uber.org/zap"
)

type redisDelayQueue struct {
	*baseDao
}

var _ persistence.DelayQueue = new(redisDelayQueue)

func NewRedisDelayQueue(baseDao *baseDao) *redisDelayQueue {
	return &redisDelayQueue{
		baseDao: baseDao,
	}
}

func (rq *redisDelayQueue) PushWithDelay(ctx context.Context, queueName string, delay time.Duration, message []byte) error {
	queueName = rq.getNamespaceKey(queueName)
	member := rd.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: message,
	}
	err := rq.redisClient.ZAdd(ctx, queueName, member).Err()
	if err != nil {
		logger.Error("error while push to redis sorted set", zap.String("queue", queueName), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisDelayQueue) Pop(ctx context.Context, queueName string) ([]string, error) {
	queueName = rq.getNamespaceKey(queueName)
	currentTime := strconv.FormatInt(time.Now().UnixMilli(), 10)
	pipe := rq.redisClient.TxPipeline()
	zr := pipe.ZRangeByScore(ctx, queueName, &rd.ZRangeBy{
		Min: "0",
		Max: currentTime,
	})
	pipe.ZRemRangeByScore(ctx, queueName, "0", currentTime)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, rd.Nil) {
		logger.Error("error while pop from redis sorted set", zap.String("queue", queueName), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res, err := zr.Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return res, nil
}
