package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ChannelFor is the Redis Pub/Sub channel carrying an auction's events.
func ChannelFor(auctionID string) string {
	return "auc:" + auctionID + ":events"
}

// Redis publishes events to Redis so that every service instance can fan
// them out to its own websocket rooms.
type Redis struct {
	rdb redis.Cmdable
}

var _ Broadcaster = (*Redis)(nil)

func NewRedis(rdb redis.Cmdable) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, ChannelFor(ev.AuctionID), string(payload)).Err()
}
