// Package mqtt wraps the paho client behind a small publish-only surface.
package mqtt

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/joshp123/gotherm/internal/config"
)

const connectTimeout = 10 * time.Second

// Publisher is the minimal surface the state feed needs. It keeps handler
// and service tests broker-free.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Close()
}

// Client is the paho-backed Publisher used in production.
type Client struct {
	cli paho.Client
	log *zap.SugaredLogger
}

// Connect dials the broker from config. Callers should skip the state feed
// entirely when no broker URL is configured.
func Connect(cfg config.MQTTConfig, log *zap.SugaredLogger) (*Client, error) {
	broker, err := normalizeBroker(cfg.BrokerURL)
	if err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) {
		log.Infow("mqtt connected", "broker", broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warnw("mqtt connection lost", "err", err)
	}

	cli := paho.NewClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &Client{cli: cli, log: log}, nil
}

// Publish sends a message at QoS 0.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	token := c.cli.Publish(topic, 0, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Close() {
	c.cli.Disconnect(250)
}

// normalizeBroker maps mqtt:// style URLs onto the schemes paho accepts.
func normalizeBroker(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("broker url is required")
	}
	if !strings.Contains(raw, "://") {
		return "tcp://" + raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp":
		u.Scheme = "tcp"
	case "mqtts", "ssl", "tls":
		u.Scheme = "ssl"
	case "ws", "wss":
		// websocket brokers pass through untouched
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	return u.String(), nil
}
