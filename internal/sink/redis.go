package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Redis appends alerts to a Redis stream for downstream consumers.
type Redis struct {
	client    *redis.Client
	stream    string
	maxLen    int64
	target    string
	reference string
	now       func() time.Time
}

// NewRedis creates a Redis sink. The stream is capped at roughly maxLen
// entries; zero leaves it unbounded.
func NewRedis(client *redis.Client, stream string, maxLen int64, target, reference string) *Redis {
	return &Redis{
		client:    client,
		stream:    stream,
		maxLen:    maxLen,
		target:    target,
		reference: reference,
		now:       time.Now,
	}
}

// Name implements Sink.
func (r *Redis) Name() string { return "redis" }

// Send implements Sink.
func (r *Redis) Send(ctx context.Context, result *types.DetectionResult) error {
	ev := types.NewAlertEvent(result, r.target, r.reference, r.now())
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":        ev.ID,
			"data":      string(data),
			"timestamp": ev.Time.Unix(),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add alert to stream %s: %w", r.stream, err)
	}
	return nil
}
