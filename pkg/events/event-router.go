package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/waldo/pkg/helpers"
)

// EventRouter is the in-process bus of one room session. Frames from the room are
// published as envelopes and fanned out to the hooks registered per topic.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	// hooks see a session's events in publish order
	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = helpers.SessionPublisherDecorator{Publisher: goPubSub}
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create router")
	}
	ret.router = router

	return ret, nil
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	log.Debug().Msg("Event router closed")
	return nil
}

// AddHandler subscribes f to topic. Handlers added after the router started are picked up
// by RunHandlers.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// HandleEnvelopes subscribes f to the envelopes published on topic. Messages are always
// acked: undecodable envelopes, handler errors and handler panics are logged and the
// event is dropped, never redelivered.
func (e *EventRouter) HandleEnvelopes(name string, topic string, f func(env *Envelope) error) {
	e.AddHandler(name, topic, func(msg *message.Message) error {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("handler", name).Msg("Event handler panicked")
			}
		}()
		env, err := DecodeEnvelope(msg)
		if err != nil {
			log.Warn().Err(err).Str("handler", name).Str("topic", topic).Msg("Dropping undecodable event")
			return nil
		}
		if err := f(env); err != nil {
			log.Warn().Err(err).Str("handler", name).Str("topic", topic).Msg("Event handler failed")
		}
		return nil
	})
}

// Start runs the router in the background and returns once it accepts messages. The
// router stops when ctx is cancelled.
func (e *EventRouter) Start(ctx context.Context) error {
	go func() {
		if err := e.router.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Event router stopped")
		}
	}()
	select {
	case <-e.router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) RunHandlers(ctx context.Context) error {
	return e.router.RunHandlers(ctx)
}
