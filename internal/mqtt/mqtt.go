// Package mqtt wraps the paho client for the readings subscriber.
package mqtt

import (
	"crypto/tls"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultBroker   = "tcp://localhost:1883"
	defaultClientID = "temperature-service"
	connectTimeout  = 15 * time.Second
	subscribeQoS    = 1
)

type Client struct {
	client paho.Client
}

// Message exposes a paho message to the ingest layer.
type Message struct {
	paho.Message
}

func (m Message) Retained() bool { return m.Message.Retained() }

// BrokerURL rewrites mqtt:// and mqtts:// URLs to the schemes paho dials.
func BrokerURL(raw string) string {
	url := strings.TrimSpace(raw)
	switch {
	case url == "":
		return defaultBroker
	case strings.HasPrefix(url, "mqtt://"):
		return "tcp://" + strings.TrimPrefix(url, "mqtt://")
	case strings.HasPrefix(url, "mqtts://"):
		return "ssl://" + strings.TrimPrefix(url, "mqtts://")
	}
	return url
}

func clientOptions(brokerURL, clientID string) *paho.ClientOptions {
	url := BrokerURL(brokerURL)
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = defaultClientID
	}

	opts := paho.NewClientOptions().
		AddBroker(url).
		// Brokers drop the older session on a client id clash.
		SetClientID(clientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetOrderMatters(false)
	if strings.HasPrefix(url, "ssl://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", url, "error", err)
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		slog.Info("mqtt connected", "broker", url)
	})
	return opts
}

// Connect dials the broker and waits up to connectTimeout for the session.
func Connect(brokerURL, clientID string) (*Client, error) {
	c := paho.NewClient(clientOptions(brokerURL, clientID))
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, tok.Error()
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

// Subscribe delivers every message on topic to handler at QoS 1. Paho
// replays the subscription after a reconnect.
func (c *Client) Subscribe(topic string, handler func(Message)) error {
	tok := c.client.Subscribe(topic, subscribeQoS, func(_ paho.Client, msg paho.Message) {
		handler(Message{Message: msg})
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
