package events

import (
	"context"
	"encoding/json"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"go.uber.org/zap"
)

// RedisPublisher forwards the event envelope to redis pub/sub so processes
// outside this one can subscribe.
type RedisPublisher struct {
	client  rd.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ Publisher = new(RedisPublisher)

func NewRedisPublisher(addrs []string, password string, prefix string) *RedisPublisher {
	client := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    addrs,
		Password: password,
	})
	return &RedisPublisher{
		client:  client,
		prefix:  prefix,
		timeout: 2 * time.Second,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType model.EventType, payload map[string]any, source string) {
	_ = p.send(ctx, NewEvent(eventType, payload, source))
}

// Handle makes the publisher usable as a bus subscriber, which keeps the redis
// round trip off the publishing goroutine.
func (p *RedisPublisher) Handle(evt model.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.send(ctx, evt)
}

func (p *RedisPublisher) send(ctx context.Context, evt model.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("error encoding event", zap.String("event", string(evt.Type)), zap.Error(err))
		return err
	}
	channel := ChannelName(p.prefix, evt.Type)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		logger.Error("error publishing event to redis", zap.String("channel", channel), zap.Error(err))
		return err
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
