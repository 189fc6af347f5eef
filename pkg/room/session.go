package room

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-go-golems/waldo/pkg/dispatch"
	"github.com/go-go-golems/waldo/pkg/events"
	"github.com/go-go-golems/waldo/pkg/helpers"
	"github.com/go-go-golems/waldo/pkg/llm"
	"github.com/go-go-golems/waldo/pkg/metrics"
	"github.com/go-go-golems/waldo/pkg/session"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrSessionClosed = errors.New("agent session closed")

const maxHistory = 20

type reply struct {
	id                 string
	allowInterruptions bool
	cancel             context.CancelFunc
	done               chan struct{}
}

// Session is an agent session on a room connection. Incoming frames are published on an
// event bus; hooks registered with On consume them.
type Session struct {
	client    *Client
	id        string
	opts      session.Options
	router    *events.EventRouter
	publisher *events.SessionPublisher

	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	endErr   error

	mu         sync.Mutex
	started    bool
	closed     bool
	current    *reply
	history    []llm.Message
	handlerSeq int
	replies    sync.WaitGroup
}

var _ session.AgentSession = &Session{}

func newSession(c *Client, id string, opts session.Options) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	router, err := events.NewEventRouter(events.WithLogger(
		helpers.NewBusLogger(log.Logger, "session-bus").With(watermill.LogFields{"session_id": id}),
	))
	if err != nil {
		return nil, errors.Wrap(err, "create session event router")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		client:    c,
		id:        id,
		opts:      opts,
		router:    router,
		publisher: events.NewSessionPublisher(router.Publisher, id),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

// Start runs the event bus, asks the room to start speech processing and lets the agent
// greet the participant.
func (s *Session) Start(ctx context.Context, agent session.Agent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("agent session already started")
	}
	s.started = true
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(helpers.ContextWithSessionID(ctx, s.id))
	runCtx := s.ctx
	s.mu.Unlock()

	if err := s.router.Start(runCtx); err != nil {
		return errors.Wrap(err, "start session event router")
	}

	err := s.client.send(StartSessionFrame{
		Type:      FrameStartSession,
		SessionID: s.id,
		Input: InputOptions{
			NoiseCancellation:   s.opts.NoiseCancellation,
			MinEndpointingDelay: s.opts.MinEndpointingDelay.Seconds(),
			MaxEndpointingDelay: s.opts.MaxEndpointingDelay.Seconds(),
		},
	})
	if err != nil {
		return errors.Wrap(err, "send start_session frame")
	}

	go s.pump(runCtx)

	return agent.OnEnter(runCtx, s)
}

// On registers handler for a session event. Handlers registered after Start are started
// immediately.
func (s *Session) On(event string, handler func(payload interface{})) error {
	if !events.IsKnownTopic(event) {
		return errors.Wrapf(session.ErrUnsupportedEvent, "%q", event)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.handlerSeq++
	name := fmt.Sprintf("%s-%s-%d", s.id, event, s.handlerSeq)
	started := s.started
	runCtx := s.ctx
	s.mu.Unlock()

	s.router.HandleEnvelopes(name, event, func(env *events.Envelope) error {
		payload, err := decodePayload(env)
		if err != nil {
			return err
		}
		handler(payload)
		return nil
	})

	if started {
		return errors.Wrap(s.router.RunHandlers(runCtx), "start session hook")
	}
	return nil
}

// decodePayload turns an envelope back into the value hooks expect for its topic.
func decodePayload(env *events.Envelope) (interface{}, error) {
	switch env.Topic {
	case events.TopicMetricsCollected:
		var ev metrics.Event
		err := env.Decode(&ev)
		return ev, err
	case events.TopicParticipantJoined:
		var p session.Participant
		err := env.Decode(&p)
		return p, err
	default:
		var v interface{}
		err := env.Decode(&v)
		return v, err
	}
}

func (s *Session) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.client.frames:
			if !ok {
				log.Info().Str("session_id", s.id).Msg("Room connection closed")
				s.finish(errors.Wrap(s.client.err(), "room connection closed"))
				return
			}
			s.handleFrame(ctx, frame)
		}
	}
}

// finish records why the session stopped and closes Done. Only the first cause is kept.
func (s *Session) finish(cause error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.endErr = cause
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is nil while the session runs.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

func (s *Session) handleFrame(ctx context.Context, frame *IncomingFrame) {
	switch frame.Type {
	case FrameTranscript:
		if len(frame.Payload) == 0 {
			return
		}
		var raw interface{}
		if err := json.Unmarshal(frame.Payload, &raw); err != nil {
			log.Warn().Err(err).Msg("Invalid transcript payload")
			return
		}
		text, _ := dispatch.Normalize(raw)
		if text != "" {
			s.bargeIn()
		}
		if !frame.IsFinal() {
			return
		}
		s.publisher.PublishBlind(ctx, events.TopicTranscript, frame.Payload)
		s.publisher.PublishBlind(ctx, events.TopicMetricsCollected, metrics.Event{
			Kind:      metrics.KindTranscript,
			SessionID: s.id,
			Timestamp: time.Now(),
		})
	case FrameParticipantJoined:
		if frame.Participant != nil {
			s.publisher.PublishBlind(ctx, events.TopicParticipantJoined, session.Participant{
				Identity: frame.Participant.Identity,
				Name:     frame.Participant.Name,
			})
		}
	case FrameParticipantLeft:
		identity := ""
		if frame.Participant != nil {
			identity = frame.Participant.Identity
		}
		log.Info().Str("participant", identity).Msg("Participant left")
	default:
		log.Debug().Str("type", frame.Type).Msg("Ignoring room frame")
	}
}

// GenerateReply queues a reply for instructions and returns once it is accepted. A new
// reply supersedes an in-flight one that allows interruptions.
func (s *Session) GenerateReply(_ context.Context, instructions string, allowInterruptions bool) error {
	if strings.TrimSpace(instructions) == "" {
		return errors.New("empty reply instructions")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.started {
		return errors.New("agent session not started")
	}

	prev := s.current
	if prev != nil && prev.allowInterruptions {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	r := &reply{
		id:                 uuid.NewString(),
		allowInterruptions: allowInterruptions,
		cancel:             cancel,
		done:               make(chan struct{}),
	}
	s.current = r
	history := append([]llm.Message(nil), s.history...)

	s.replies.Add(1)
	go s.runReply(ctx, r, prev, llm.Prompt{Instructions: instructions, History: history})
	return nil
}

func (s *Session) runReply(ctx context.Context, r *reply, prev *reply, prompt llm.Prompt) {
	defer s.replies.Done()
	defer close(r.done)
	defer r.cancel()
	defer s.clearCurrent(r)

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
		}
	}

	start := time.Now()
	var ttft time.Duration
	var sb strings.Builder

	usage, err := s.client.generator.Stream(ctx, prompt, func(delta string) error {
		if ttft == 0 {
			ttft = time.Since(start)
		}
		sb.WriteString(delta)
		return s.client.send(ReplyFrame{Type: FrameReplyDelta, ReplyID: r.id, Text: delta})
	})

	ev := metrics.Event{
		Kind:      metrics.KindReply,
		SessionID: s.id,
		ReplyID:   r.id,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	switch {
	case ctx.Err() != nil:
		ev.Interrupted = true
		if sendErr := s.client.send(ReplyFrame{Type: FrameReplyInterrupted, ReplyID: r.id}); sendErr != nil {
			log.Debug().Err(sendErr).Msg("Could not send reply_interrupted frame")
		}
		log.Debug().Str("reply_id", r.id).Msg("Reply interrupted")
	case err != nil:
		ev.Error = err.Error()
		log.Error().Err(err).Str("reply_id", r.id).Msg("Reply generation failed")
	default:
		if sendErr := s.client.send(ReplyFrame{
			Type:               FrameReplyDone,
			ReplyID:            r.id,
			Text:               sb.String(),
			AllowInterruptions: r.allowInterruptions,
		}); sendErr != nil {
			log.Warn().Err(sendErr).Str("reply_id", r.id).Msg("Could not send reply_done frame")
		}
		s.remember(llm.Message{Role: llm.RoleAssistant, Content: sb.String()})
		s.publisher.PublishBlind(s.ctx, events.TopicMetricsCollected, metrics.Event{
			Kind:             metrics.KindLLM,
			SessionID:        s.id,
			ReplyID:          r.id,
			Model:            s.client.generator.Model(),
			Timestamp:        time.Now(),
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			Estimated:        usage.Estimated,
			TimeToFirstToken: ttft,
		})
	}
	s.publisher.PublishBlind(s.ctx, events.TopicMetricsCollected, ev)
}

func (s *Session) clearCurrent(r *reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == r {
		s.current = nil
	}
}

// bargeIn stops the reply being spoken when the user starts talking over it.
func (s *Session) bargeIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.allowInterruptions {
		s.current.cancel()
	}
}

func (s *Session) remember(m llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, m)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}

// Close interrupts the current reply, stops the event bus and leaves the room.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.cancel()
	s.mu.Unlock()
	s.finish(ErrSessionClosed)

	s.replies.Wait()
	if started {
		if err := s.router.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close session event router")
		}
	}
	return s.client.Close()
}
