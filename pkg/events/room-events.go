package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Topics a room session publishes on. The names double as the event names accepted by
// Session.On.
const (
	TopicTranscript        = "transcript"
	TopicMetricsCollected  = "metrics_collected"
	TopicParticipantJoined = "participant_joined"
)

// KnownTopics lists every event name a session can deliver.
var KnownTopics = []string{TopicTranscript, TopicMetricsCollected, TopicParticipantJoined}

func IsKnownTopic(name string) bool {
	for _, t := range KnownTopics {
		if t == name {
			return true
		}
	}
	return false
}

// Envelope wraps every payload published on the bus.
type Envelope struct {
	Topic     string          `json:"topic"`
	SessionID string          `json:"session_id"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return errors.Errorf("empty %s payload", e.Topic)
	}
	return errors.Wrapf(json.Unmarshal(e.Payload, v), "decode %s payload", e.Topic)
}

// DecodeEnvelope reads the envelope carried by msg.
func DecodeEnvelope(msg *message.Message) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	return &env, nil
}

// NewEnvelopeMessage builds a watermill message carrying payload on topic. payload may be
// raw JSON (json.RawMessage or []byte) or any value that marshals to JSON.
func NewEnvelopeMessage(ctx context.Context, topic string, sessionID string, seq uint64, payload interface{}) (*message.Message, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s payload", topic)
		}
		raw = b
	}

	b, err := json.Marshal(Envelope{
		Topic:     topic,
		SessionID: sessionID,
		Sequence:  seq,
		Timestamp: time.Now(),
		Payload:   raw,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.SetContext(ctx)
	return msg, nil
}
