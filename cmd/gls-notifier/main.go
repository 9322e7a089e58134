// gls-notifier tails the notifications topic and surfaces each message in
// the log. Stand-in delivery channel for setups where the watcher publishes
// to Kafka instead of logging directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/glswatch/config"
	"github.com/BearBump/glswatch/internal/broker/kafka"
	"github.com/BearBump/glswatch/internal/broker/messages"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = "gls.notifications"
	}
	group := cfg.Kafka.ConsumerGroup
	if group == "" {
		group = "gls-notifier"
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, group)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("kafka consumer started", "topic", topic, "group", group)
	err = consumer.Consume(ctx, func(key, value []byte) error {
		var m messages.Notification
		if err := json.Unmarshal(value, &m); err != nil {
			// Битое сообщение пропускаем, иначе застрянем на нём навсегда.
			slog.Warn("bad notification payload", "error", err.Error())
			return nil
		}
		slog.Info("notification",
			"title", m.Title,
			"message", m.Message,
			"dedupe_key", m.DedupeKey,
			"raised_at", m.RaisedAt,
		)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		panic(err)
	}
}
