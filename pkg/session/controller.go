package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/waldo/pkg/dispatch"
	"github.com/go-go-golems/waldo/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateIdle                  State = "idle"
	StateConnecting            State = "connecting"
	StateWaitingForParticipant State = "waiting_for_participant"
	StateActive                State = "active"
	StateCancelled             State = "cancelled"
	StateCrashed               State = "crashed"
)

// MetricsSink receives every metrics_collected event.
type MetricsSink interface {
	OnMetrics(ev metrics.Event)
}

// Controller runs one agent session from room connection to shutdown.
type Controller struct {
	room         Room
	factory      AgentFactory
	options      Options
	sink         MetricsSink
	drainTimeout time.Duration

	mu    sync.Mutex
	state State
}

type ControllerOption func(*Controller)

func WithOptions(o Options) ControllerOption {
	return func(c *Controller) {
		c.options = o
	}
}

func WithMetricsSink(s MetricsSink) ControllerOption {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithDrainTimeout bounds how long Run waits for in-flight turns after cancellation.
func WithDrainTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.drainTimeout = d
	}
}

func NewController(room Room, factory AgentFactory, options ...ControllerOption) *Controller {
	ret := &Controller{
		room:         room,
		factory:      factory,
		options:      DefaultOptions(),
		drainTimeout: 5 * time.Second,
		state:        StateIdle,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.Debug().Str("state", string(s)).Msg("Session state")
}

func (c *Controller) crash(err error) error {
	c.setState(StateCrashed)
	log.Error().Err(err).Str("room", c.room.Name()).Msg("Session crashed")
	return err
}

// Run connects, waits for a participant, starts the agent and then blocks until ctx is
// cancelled or the session ends. Cancellation is a normal shutdown and returns nil; a
// session that ends on its own is a crash.
func (c *Controller) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	log.Info().Str("room", c.room.Name()).Msg("connecting to room")
	if err := c.room.Connect(ctx, SubscribeAudioOnly); err != nil {
		return c.crash(errors.Wrap(err, "connect to room"))
	}

	c.setState(StateWaitingForParticipant)
	participant, err := c.room.WaitForParticipant(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.setState(StateCancelled)
			log.Info().Msg("Cancelled while waiting for a participant")
			return nil
		}
		return c.crash(errors.Wrap(err, "wait for participant"))
	}
	log.Info().Str("participant", participant.Identity).Msg("starting voice assistant for participant")

	sess, err := c.room.NewAgentSession(c.options)
	if err != nil {
		return c.crash(errors.Wrap(err, "create agent session"))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close agent session")
		}
	}()

	c.registerHook(sess, EventMetricsCollected, c.onMetrics)

	agent, err := c.factory(sess, participant)
	if err != nil {
		return c.crash(errors.Wrap(err, "create agent"))
	}

	if err := sess.Start(ctx, agent); err != nil {
		return c.crash(errors.Wrap(err, "start agent session"))
	}

	dispatcher := dispatch.NewDispatcher(ctx, agent)
	c.registerHook(sess, EventTranscript, dispatcher.OnTranscriptEvent)

	c.setState(StateActive)
	select {
	case <-ctx.Done():
		c.setState(StateCancelled)
		log.Info().Msg("Entrypoint cancelled, shutting down.")
		c.drain(dispatcher)
		return nil
	case <-sess.Done():
		c.drain(dispatcher)
		cause := sess.Err()
		if cause == nil {
			cause = ErrSessionEnded
		}
		return c.crash(errors.Wrap(cause, "room session ended"))
	}
}

// registerHook registers handler and logs instead of failing when the session refuses it.
func (c *Controller) registerHook(sess AgentSession, event string, handler func(interface{})) {
	if err := sess.On(event, handler); err != nil {
		err = errors.Wrapf(ErrHookRegistration, "%s: %v", event, err)
		log.Warn().Err(err).Str("event", event).
			Msg("Could not register event on session, continuing without it")
	}
}

func (c *Controller) onMetrics(payload interface{}) {
	ev, ok := payload.(metrics.Event)
	if !ok {
		log.Debug().Interface("payload", payload).Msg("Ignoring unexpected metrics payload")
		return
	}
	if c.sink == nil {
		metrics.LogMetrics(log.Logger, ev)
		return
	}
	c.sink.OnMetrics(ev)
}

func (c *Controller) drain(d *dispatch.Dispatcher) {
	if c.drainTimeout <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.drainTimeout):
		log.Warn().Dur("timeout", c.drainTimeout).Msg("In-flight turns did not finish before shutdown")
	}
}
