// Package invalidation forwards resource change notifications to external caches.
package invalidation

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/composables"
)

const DefaultChannel = "backoffice:invalidate"

// Message is the payload published for every changed record.
type Message struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Path         string `json:"path"`
}

// RedisPublisher re-publishes ResourceChangedEvent on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Handle is an event bus subscriber. Failures are logged; invalidation never
// fails the mutation that triggered it.
func (p *RedisPublisher) Handle(ctx context.Context, e *services.ResourceChangedEvent) error {
	payload, err := json.Marshal(Message{
		ResourceType: string(e.Ref.Type),
		ResourceID:   e.Ref.ID,
		Path:         e.Path,
	})
	if err != nil {
		return errors.Wrap(err, "encode invalidation message")
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		composables.UseLogger(ctx).WithError(err).WithField("channel", p.channel).Warn("failed to publish invalidation")
		return errors.Wrap(err, "publish invalidation")
	}
	return nil
}
