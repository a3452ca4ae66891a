package redis

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-room-service/internal/broadcast"
)

const eventChannelPrefix = "quizroom:events:"

// EventPublisher fans room events out across instances through Redis pub/sub.
// Every instance runs a Relay that feeds its local hub.
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, event broadcast.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, eventChannelPrefix+event.RoomID, raw).Err()
}

// wireEvent keeps the payload as raw JSON so it is re-encoded unchanged.
type wireEvent struct {
	Name    string          `json:"event"`
	RoomID  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

// Relay forwards every room event seen on Redis into the local hub until ctx
// is cancelled. ready, if non-nil, is closed once the subscription is live.
func Relay(ctx context.Context, client *redis.Client, hub broadcast.Publisher, logger *zap.Logger, ready chan<- struct{}) error {
	sub := client.PSubscribe(ctx, eventChannelPrefix+"*")
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
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("drop malformed room event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if ev.RoomID == "" {
				ev.RoomID = strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			}
			event := broadcast.Event{Name: ev.Name, RoomID: ev.RoomID, Payload: ev.Payload}
			if err := hub.Publish(ctx, event); err != nil {
				logger.Warn("relay room event failed", zap.String("room_id", ev.RoomID), zap.Error(err))
			}
		}
	}
}
