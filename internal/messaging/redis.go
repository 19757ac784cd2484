package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans team notification events out over Redis pub/sub.
// Nothing is retained for subscribers that are not connected.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(ctx context.Context, redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func ChannelName(teamID string) string {
	return fmt.Sprintf("team:%s:events", teamID)
}

func (p *RedisPublisher) Publish(ctx context.Context, teamID string, body []byte) error {
	if err := p.client.Publish(ctx, ChannelName(teamID), body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", ChannelName(teamID), err)
	}
	return nil
}

// Client exposes the underlying client, e.g. for subscribers in tests.
func (p *RedisPublisher) Client() *redis.Client {
	return p.client
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
