package publish

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// channelPrefix matches the channel scheme external consumers already follow:
// arbitrage:cex_cex and arbitrage:cex_cex_cex.
const channelPrefix = "arbitrage:"

// RedisSink mirrors each published batch onto Redis pub/sub channels for
// out-of-process consumers.
type RedisSink struct {
	client redis.UniversalClient
}

// NewRedisSink wraps an existing Redis client.
func NewRedisSink(client redis.UniversalClient) *RedisSink {
	return &RedisSink{client: client}
}

// Publish sends the payload to the feed's channel.
func (s *RedisSink) Publish(ctx context.Context, feed Feed, payload []byte) error {
	return s.client.Publish(ctx, channelPrefix+string(feed), payload).Err()
}
