package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is the root of every kiosk topic.
const DefaultTopicPrefix = "pourkiosk"

// MQTTConfig configures an MQTT publisher.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string

	// ClientID identifies the kiosk to the broker.
	ClientID string

	// TopicPrefix is prepended to every topic. Events go to
	// <prefix>/<kiosk id>/<kind>.
	TopicPrefix string

	// QoS is used for everything but progress, which is always QoS 0.
	QoS byte

	// Timeout bounds connect and each publish.
	Timeout time.Duration
}

// publishClient is the part of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes events as JSON to an MQTT broker.
type MQTT struct {
	client  publishClient
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTT connects to the broker and returns a publisher.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}
	cfg = withDefaults(cfg)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.AutoReconnect = true
	opts.CleanSession = true
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	slog.Info("connected to broker", "broker", cfg.Broker, "client_id", cfg.ClientID)

	return newMQTT(client, cfg), nil
}

func withDefaults(cfg MQTTConfig) MQTTConfig {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg
}

func newMQTT(client publishClient, cfg MQTTConfig) *MQTT {
	cfg = withDefaults(cfg)
	return &MQTT{
		client:  client,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
	}
}

// Topic returns the topic an event is published on.
func (m *MQTT) Topic(e Event) string {
	kiosk := e.KioskID
	if kiosk == "" {
		kiosk = "default"
	}
	return m.prefix + "/" + kiosk + "/" + string(e.Kind)
}

// Publish sends e as JSON and waits for the broker to acknowledge it.
func (m *MQTT) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mqtt: marshal %s event: %w", e.Kind, err)
	}

	qos := m.qos
	if e.Kind == KindProgress {
		qos = 0
	}
	topic := m.Topic(e)
	token := m.client.Publish(topic, qos, false, payload)

	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing 250 ms for in-flight messages.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
