package backplane

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisTransport backs the backplane with Redis Pub/Sub, grounded on the
// redisclient wiring already used for the L2 store.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport wraps an existing *redis.Client.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	sub := t.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		redisCh := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, sub.Close, nil
}
