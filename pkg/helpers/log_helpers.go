package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog/log"
)

// SessionIDMetadataKey carries the room session a message belongs to.
const SessionIDMetadataKey = "session_id"

type sessionIDKeyType string

const sessionIDKey sessionIDKeyType = "session_id"

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext returns the session ID stored in ctx. Messages published outside a
// session get a generated ID prefixed with "gen_" so they stand out in logs.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v
	}
	log.Ctx(ctx).Debug().Msg("session ID not found in context")
	return "gen_" + shortuuid.New()
}

// SessionPublisherDecorator stamps outgoing messages with the session ID of their context.
type SessionPublisherDecorator struct {
	message.Publisher
}

func (s SessionPublisherDecorator) Publish(topic string, messages ...*message.Message) error {
	for i := range messages {
		if messages[i].Metadata.Get(SessionIDMetadataKey) != "" {
			continue
		}
		messages[i].Metadata.Set(SessionIDMetadataKey, SessionIDFromContext(messages[i].Context()))
	}
	return s.Publisher.Publish(topic, messages...)
}
