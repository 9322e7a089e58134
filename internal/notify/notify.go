// Package notify is the "raise a user notification" boundary. The watcher
// only decides; delivery goes through one of these.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/glswatch/internal/broker/messages"
	"github.com/pkg/errors"
)

type Notifier interface {
	Raise(ctx context.Context, title, message, dedupeKey string) error
}

// LogNotifier surfaces notifications in the service log. Default for
// single-machine runs.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Raise(_ context.Context, title, message, dedupeKey string) error {
	slog.Info("notification", "title", title, "message", message, "dedupe_key", dedupeKey)
	return nil
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaNotifier publishes notifications on a topic, keyed by dedupe key so
// repeats for one shipment land in one partition.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Raise(ctx context.Context, title, message, dedupeKey string) error {
	b, err := json.Marshal(messages.Notification{
		Title:     title,
		Message:   message,
		DedupeKey: dedupeKey,
		RaisedAt:  time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return n.producer.Publish(ctx, n.topic, []byte(dedupeKey), b)
}
