package redis

import (
	"context"

	"github.com/mohitkumar/mediaflow/persistence"
)

// NewStorage returns redis backed stores and queues sharing one client.
func NewStorage(conf Config) *persistence.Storage {
	base := newBaseDao(conf)
	storage := &persistence.Storage{
		Jobs:       NewRedisJobDao(base),
		Drafts:     NewRedisDraftDao(base),
		Modules:    NewRedisModuleDao(base),
		Projects:   NewRedisProjectDao(base),
		Queue:      NewRedisQueue(base),
		DelayQueue: NewRedisDelayQueue(base),
	}
	storage.AddCloser(base.close)
	return storage
}

// NewQueues returns only the redis queues, for running redis queues in front
// of a different record store.
func NewQueues(conf Config) (persistence.Queue, persistence.DelayQueue, func() error) {
	base := newBaseDao(conf)
	return NewRedisQueue(base), NewRedisDelayQueue(base), base.close
}

func Ping(ctx context.Context, conf Config) error {
	base := newBaseDao(conf)
	defer base.close()
	return base.ping(ctx)
}
