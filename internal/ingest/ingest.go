package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/mlusby/temperature-monitor/internal/readings"
)

const DefaultTopicPrefix = "temperature/readings/"

var ErrNotAReadingsTopic = errors.New("not a readings topic")

// Ingestor stores readings that arrive over a message bus through the same
// Writer the HTTP API uses.
type Ingestor struct {
	Writer       *readings.Writer
	TopicPrefix  string
	AllowRetains bool
}

type MQTTMessage interface {
	Topic() string
	Payload() []byte
	Retained() bool
}

func (i *Ingestor) prefix() string {
	if i.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return i.TopicPrefix
}

// SubscriptionTopic is the MQTT filter covering every readings topic.
func (i *Ingestor) SubscriptionTopic() string {
	return strings.TrimSuffix(i.prefix(), "/") + "/#"
}

// Ingest validates and stores one JSON payload. fallbackSession fills in
// the sessionId when the payload omits it.
func (i *Ingestor) Ingest(ctx context.Context, fallbackSession string, payload []byte) (string, error) {
	body, err := withSession(payload, fallbackSession)
	if err != nil {
		return "", err
	}
	in, err := readings.DecodeReading(body)
	if err != nil {
		return "", err
	}
	return i.Writer.Write(ctx, in)
}

func (i *Ingestor) HandleMessage(ctx context.Context, msg MQTTMessage) {
	topic := msg.Topic()
	if msg.Retained() && !i.AllowRetains {
		slog.Debug("readings ingest ignoring retained", "topic", topic)
		return
	}

	sessionID, err := ParseSessionID(i.prefix(), topic)
	if err != nil {
		return
	}

	id, err := i.Ingest(ctx, sessionID, msg.Payload())
	if err != nil {
		slog.Warn("readings ingest rejected", "topic", topic, "session_id", sessionID, "error", err)
		return
	}
	slog.Debug("reading ingested", "topic", topic, "id", id)
}

// ParseSessionID returns the topic suffix after prefix, which may be empty.
func ParseSessionID(prefix, topic string) (string, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	base := strings.TrimSuffix(prefix, "/")
	if topic != base && !strings.HasPrefix(topic, base+"/") {
		return "", ErrNotAReadingsTopic
	}
	return strings.Trim(strings.TrimPrefix(topic, base), "/"), nil
}

func withSession(payload []byte, sessionID string) ([]byte, error) {
	if sessionID == "" {
		return payload, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		// Let DecodeReading report the failure.
		return payload, nil
	}
	if raw, ok := fields["sessionId"]; ok {
		var existing string
		if json.Unmarshal(raw, &existing) == nil && strings.TrimSpace(existing) != "" {
			return payload, nil
		}
	}
	encoded, err := json.Marshal(sessionID)
	if err != nil {
		return nil, err
	}
	fields["sessionId"] = encoded
	return json.Marshal(fields)
}
