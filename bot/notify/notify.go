// Package notify announces successful posts to other services.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/watzon/cubeglobe-bot/bot/config"
)

const (
	publishQoS     = 1
	publishTimeout = 10 * time.Second
	connectTimeout = 30 * time.Second
)

// Event describes a published status.
type Event struct {
	ID       uint32    `json:"id"`
	Seed     int64     `json:"seed"`
	StatusID string    `json:"status_id"`
	URL      string    `json:"url"`
	PostedAt time.Time `json:"posted_at"`
}

// Notifier announces posts
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close()                              {}

// MQTTNotifier publishes events as JSON to an MQTT topic.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// New returns an MQTT notifier when a broker is configured and Nop otherwise.
func New(cfg config.MQTTConfig, logger *zap.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}

	options := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	options.ConnectRetry = true
	options.AutoReconnect = true

	if cfg.Username != "" {
		options.SetUsername(cfg.Username)
		if cfg.Password != "" {
			options.SetPassword(cfg.Password)
		}
	}

	options.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}
	options.OnConnect = func(_ mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	}
	options.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT reconnecting")
	}

	client := mqtt.NewClient(options)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}

	return newMQTTNotifier(client, cfg.Topic, logger), nil
}

func newMQTTNotifier(client mqtt.Client, topic string, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, logger: logger}
}

// Notify publishes ev and waits for the broker to acknowledge it.
func (n *MQTTNotifier) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	token := n.client.Publish(n.topic, publishQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("timed out publishing to %s", n.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.topic, err)
	}

	n.logger.Debug("Announced post", zap.String("topic", n.topic), zap.Uint32("id", ev.ID))
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
