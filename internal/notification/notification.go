package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KindRequestCreated is emitted when an agency submits a request.
	KindRequestCreated = "request.created"
	// KindRequestValidated is emitted when central cash validates a request.
	KindRequestValidated = "request.validated"
	KindRequestRejected   = "request.rejected"
	KindTeamAssigned      = "request.team_assigned"
	KindRequestDispatched = "request.dispatched"
	KindRequestReceived   = "request.received"
)

// DefaultChannel is the Redis pub/sub channel lifecycle events go to.
const DefaultChannel = "fundflow:lifecycle"

// Message describes a lifecycle event.
type Message struct {
	Kind       string    `json:"kind"`
	RequestID  string    `json:"requestId"`
	AgencyID   string    `json:"agencyId"`
	Status     string    `json:"status"`
	Actor      string    `json:"actor"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier delivers lifecycle events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "request_id", message.RequestID,
		"agency_id", message.AgencyID, "status", message.Status, "body", message.Body)
	return nil
}

// RedisNotifier publishes events as JSON on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a publisher. An empty channel uses DefaultChannel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Send publishes the message.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Nop discards every message.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Message) error { return nil }
