package ws

import (
	"context"
	"encoding/json"
	"strings"

	"llm-arena/backend/conversation/models"
	"llm-arena/backend/conversation/service"
	sharedredis "llm-arena/backend/shared/redis"
)

// RelayFromRedis feeds the hub with events published by any instance through
// a RedisSink. It returns when ctx is done or the subscription fails.
func (h *Hub) RelayFromRedis(ctx context.Context, client *sharedredis.RedisClient) error {
	sub := client.PSubscribe(ctx, service.RedisChannelPrefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	h.log.Info("Relaying stream events from redis")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.StreamEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warn("Dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			topic := strings.TrimPrefix(msg.Channel, service.RedisChannelPrefix)
			if err := h.Publish(ctx, topic, ev); err != nil {
				return nil
			}
		}
	}
}
