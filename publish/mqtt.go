package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"airquality-service/config"
	"airquality-service/models"
)

const publishTimeout = 5 * time.Second

// MQTTPublisher publishes each ranking as a retained JSON message
type MQTTPublisher struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// NewMQTTPublisher configures a client for cfg. Call Connect before publishing.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &MQTTPublisher{cfg: cfg, logger: logger.With("component", "mqtt")}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// newMQTTPublisherWithClient is used by tests to inject a client
func newMQTTPublisherWithClient(client mqtt.Client, cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, cfg: cfg, logger: logger, connected: true}
}

// Connect waits for the broker connection or ctx
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if p.IsConnected() {
		return nil
	}
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		default:
		}
	}
}

// Publish sends the sorted ranking to the configured topic
func (p *MQTTPublisher) Publish(ctx context.Context, result models.RankingResult) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt publish: not connected")
	}
	payload, err := json.Marshal(result.View(0))
	if err != nil {
		return fmt.Errorf("mqtt publish: encode: %w", err)
	}

	token := p.client.Publish(p.cfg.Topic, 1, true, payload)
	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish to %s: timeout", p.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", p.cfg.Topic, err)
	}
	p.logger.Debug("published ranking", "topic", p.cfg.Topic, "id", result.ID, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection
func (p *MQTTPublisher) Disconnect() {
	p.setConnected(false)
	p.client.Disconnect(250)
}

// IsConnected reports whether the broker connection is up
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}

var _ Publisher = (*MQTTPublisher)(nil)
