package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/persistence"
	"go.uber.org/zap"
)

type redisQueue struct {
	*baseDao
	mu               sync.Mutex
	currentPartition map[string]int
}

var _ persistence.Queue = new(redisQueue)

func NewRedisQueue(baseDao *baseDao) *redisQueue {
	return &redisQueue{
		baseDao:          baseDao,
		currentPartition: make(map[string]int),
	}
}

func (rq *redisQueue) Push(ctx context.Context, queueName string, partitionKey string, message []byte) error {
	partition := strconv.Itoa(rq.ring.GetPartition(partitionKey))
	key := rq.getNamespaceKey(queueName, partition)
	err := rq.redisClient.RPush(ctx, key, message).Err()
	if err != nil {
		logger.Error("error while push to redis list", zap.String("queue", key), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

const MAX_POP_PREALLOC = 128

// Pop walks the partitions round robin, starting after the one the previous
// call ended on, until batchSize items are collected or every partition was
// visited once.
func (rq *redisQueue) Pop(ctx context.Context, queueName string, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return []string{}, nil
	}
	result := make([]string, 0, min(batchSize, MAX_POP_PREALLOC))
	for i := 0; i < rq.ring.PartitionCount && len(result) < batchSize; i++ {
		partition := rq.nextPartition(queueName)
		key := rq.getNamespaceKey(queueName, strconv.Itoa(partition))
		items, err := rq.pop(ctx, key, batchSize-len(result))
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
	return result, nil
}

func (rq *redisQueue) pop(ctx context.Context, key string, count int) ([]string, error) {
	res, err := rq.redisClient.LPopCount(ctx, key, count).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		logger.Error("error while pop from redis list", zap.String("queue", key), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return res, nil
}

func (rq *redisQueue) nextPartition(queueName string) int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	next := (rq.currentPartition[queueName] + 1) % rq.ring.PartitionCount
	rq.currentPartition[queueName] = next
	return next
}
