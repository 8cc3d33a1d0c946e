package refcache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type invalidation struct {
	Keys   []string `json:"keys"`
	Prefix bool     `json:"prefix"`
}

// RedisBroadcaster publishes invalidations on a pub/sub channel and applies
// the ones published by other processes.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, log *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, keys []string, prefix bool) error {
	payload, err := json.Marshal(invalidation{Keys: keys, Prefix: prefix})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Listen blocks until ctx is done, dropping every key announced on the channel.
// ready is closed once the subscription is confirmed.
func (b *RedisBroadcaster) Listen(ctx context.Context, c *Cache, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				b.log.Warn("invalid cache invalidation message", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			c.drop(inv.Keys, inv.Prefix)
		}
	}
}
