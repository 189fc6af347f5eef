package events

import (
	"context"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// SessionPublisher publishes envelopes for one room session and numbers them in the order
// Publish is called.
type SessionPublisher struct {
	publisher      message.Publisher
	sessionID      string
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewSessionPublisher(publisher message.Publisher, sessionID string) *SessionPublisher {
	return &SessionPublisher{
		publisher: publisher,
		sessionID: sessionID,
	}
}

func (s *SessionPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	msg, err := NewEnvelopeMessage(ctx, topic, s.sessionID, s.sequenceNumber, payload)
	if err != nil {
		return err
	}
	msg.Metadata.Set("sequence_number", strconv.FormatUint(s.sequenceNumber, 10))
	msg.Metadata.Set("session_id", s.sessionID)
	s.sequenceNumber++

	return s.publisher.Publish(topic, msg)
}

// PublishBlind publishes and logs failures instead of returning them.
func (s *SessionPublisher) PublishBlind(ctx context.Context, topic string, payload interface{}) {
	if err := s.Publish(ctx, topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
	}
}
