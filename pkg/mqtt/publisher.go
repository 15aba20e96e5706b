package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/pkg/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// client is the subset of paho.Client used by the publisher.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Publisher sends JSON payloads under a fixed topic prefix.
type Publisher struct {
	client client
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewPublisher connects to the configured broker.
func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Sugar().Warnw("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	return newPublisher(c, cfg.TopicPrefix, cfg.QoS, logger), nil
}

func newPublisher(c client, prefix string, qos int, logger *zap.Logger) *Publisher {
	if qos < 0 || qos > 2 {
		qos = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: c, prefix: strings.TrimRight(prefix, "/"), qos: byte(qos), logger: logger}
}

// Topic joins the prefix and the given suffix.
func (p *Publisher) Topic(suffix string) string {
	suffix = strings.Trim(suffix, "/")
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}

// PublishJSON marshals v and publishes it to prefix/suffix. The wait is bounded
// by the context deadline or a default timeout.
func (p *Publisher) PublishJSON(ctx context.Context, suffix string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}
	topic := p.Topic(suffix)
	token := p.client.Publish(topic, p.qos, false, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-token.Done():
	case <-time.After(timeout):
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Connected reports the broker connection state.
func (p *Publisher) Connected() bool {
	return p.client.IsConnected()
}

// Close disconnects after letting in-flight work drain.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
