package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyTTL = 24 * time.Hour

// RedisStream stores progress rows as plain keys and additionally
// publishes each write on a per-job channel so websocket or SSE frontends
// can subscribe instead of polling.
type RedisStream struct {
	client *redis.Client
}

func NewRedisStream(client *redis.Client) *RedisStream {
	return &RedisStream{client: client}
}

func key(jobID string) string {
	return "progress:" + jobID
}

func channel(jobID string) string {
	return "progress:events:" + jobID
}

func (r *RedisStream) Set(ctx context.Context, u Update) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("progress encode %s: %w", u.ID, err)
	}
	if err := r.client.Set(ctx, key(u.ID), b, keyTTL).Err(); err != nil {
		return fmt.Errorf("progress set %s: %w", u.ID, err)
	}
	// Publish is fire-and-forget; a missed notification only delays a
	// poller by one interval.
	r.client.Publish(ctx, channel(u.ID), b)
	return nil
}

func (r *RedisStream) Get(ctx context.Context, jobID string) (Update, error) {
	b, err := r.client.Get(ctx, key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Update{}, ErrNotFound
	}
	if err != nil {
		return Update{}, fmt.Errorf("progress get %s: %w", jobID, err)
	}
	var u Update
	if err := json.Unmarshal(b, &u); err != nil {
		return Update{}, fmt.Errorf("progress decode %s: %w", jobID, err)
	}
	return u, nil
}

// Subscribe returns the pubsub subscription for one job's updates. The
// caller owns closing it.
func (r *RedisStream) Subscribe(ctx context.Context, jobID string) *redis.PubSub {
	return r.client.Subscribe(ctx, channel(jobID))
}
