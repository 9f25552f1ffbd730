// Package eventbus publishes remapped device values to an MQTT event bus in
// the Brewblox history event format.
package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// DefaultTopic is the Brewblox history topic.
	DefaultTopic = "brewcast/history"

	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// client is the subset of mqtt.Client used by [Publisher].
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// historyEvent is the message shape consumed by the history service.
type historyEvent struct {
	Key  string         `json:"key"`
	Data map[string]any `json:"data"`
}

// Publisher publishes device values under a fixed key.
type Publisher struct {
	client client
	topic  string
	key    string
	logger *slog.Logger
}

// Connect dials the broker and returns a [Publisher] for topic. key is the
// history key the values are filed under, usually the service name.
func Connect(brokerURL, clientID, topic, key string, logger *slog.Logger) (*Publisher, error) {
	if brokerURL == "" {
		return nil, errors.New("broker url is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", brokerURL, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", brokerURL, err)
	}

	logger.Debug("mqtt client connected", "broker", brokerURL, "topic", topic)
	return newPublisher(c, topic, key, logger), nil
}

func newPublisher(c client, topic, key string, logger *slog.Logger) *Publisher {
	return &Publisher{client: c, topic: topic, key: key, logger: logger}
}

// Publish sends the values of one device. Keys are prefixed with the device
// name, so {"temp": 19.5} for "Red" is published as {"Red/temp": 19.5}.
// Publishing nothing is a no-op.
func (p *Publisher) Publish(device string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	data := make(map[string]any, len(values))
	for k, v := range values {
		data[device+"/"+k] = v
	}

	msg, err := json.Marshal(historyEvent{Key: p.key, Data: data})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, msg)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %s", p.topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker. Safe to call on a nil Publisher.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
