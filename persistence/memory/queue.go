package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/mediaflow/persistence"
)

type memoryQueue struct {
	mu     sync.Mutex
	queues map[string][]string
}

var _ persistence.Queue = new(memoryQueue)

func NewQueue() *memoryQueue {
	return &memoryQueue{
		queues: make(map[string][]string),
	}
}

func (q *memoryQueue) Push(ctx context.Context, queueName string, partitionKey string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[queueName] = append(q.queues[queueName], string(message))
	return nil
}

func (q *memoryQueue) Pop(ctx context.Context, queueName string, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return []string{}, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.queues[queueName]
	if batchSize > len(items) {
		batchSize = len(items)
	}
	out := make([]string, batchSize)
	copy(out, items[:batchSize])
	q.queues[queueName] = items[batchSize:]
	return out, nil
}

type delayed struct {
	due     time.Time
	message string
}

type memoryDelayQueue struct {
	mu     sync.Mutex
	queues map[string][]delayed
}

var _ persistence.DelayQueue = new(memoryDelayQueue)

func NewDelayQueue() *memoryDelayQueue {
	return &memoryDelayQueue{
		queues: make(map[string][]delayed),
	}
}

func (q *memoryDelayQueue) PushWithDelay(ctx context.Context, queueName string, delay time.Duration, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := append(q.queues[queueName], delayed{due: time.Now().Add(delay), message: string(message)})
	sort.SliceStable(items, func(i, j int) bool { return items[i].due.Before(items[j].due) })
	q.queues[queueName] = items
	return nil
}

func (q *memoryDelayQueue) Pop(ctx context.Context, queueName string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	items := q.queues[queueName]
	idx := sort.Search(len(items), func(i int) bool { return items[i].due.After(now) })
	out := make([]string, 0, idx)
	for _, item := range items[:idx] {
		out = append(out, item.message)
	}
	q.queues[queueName] = items[idx:]
	return out, nil
}
