package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedEvent is returned by AgentSession.On for event names the session
	// does not emit.
	ErrUnsupportedEvent = errors.New("unsupported session event")
	// ErrHookRegistration marks a hook that could not be registered. Startup continues
	// without it.
	ErrHookRegistration = errors.New("hook registration failed")
	// ErrSessionEnded is reported when a session stopped without a more specific cause.
	ErrSessionEnded = errors.New("agent session ended")
)

// Event names an AgentSession emits.
const (
	EventTranscript       = "transcript"
	EventMetricsCollected = "metrics_collected"
)

// Subscription selects which tracks the agent subscribes to when joining a room.
type Subscription string

const (
	SubscribeAudioOnly Subscription = "audio_only"
	SubscribeAll       Subscription = "subscribe_all"
)

type Participant struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}

// Options configure the speech side of an agent session. Endpointing and noise
// cancellation run in the room service; the agent only forwards them.
type Options struct {
	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration
	NoiseCancellation   bool
}

func DefaultOptions() Options {
	return Options{
		MinEndpointingDelay: 500 * time.Millisecond,
		MaxEndpointingDelay: 5 * time.Second,
		NoiseCancellation:   true,
	}
}

// Room is the realtime room the agent joins.
type Room interface {
	Name() string
	Connect(ctx context.Context, sub Subscription) error
	WaitForParticipant(ctx context.Context) (Participant, error)
	NewAgentSession(opts Options) (AgentSession, error)
}

// AgentSession is the live conversation with a participant.
type AgentSession interface {
	Start(ctx context.Context, agent Agent) error
	// On registers handler for the named event. Payloads are delivered as decoded by the
	// session: transcripts as raw provider values, metrics as metrics.Event.
	On(event string, handler func(payload interface{})) error
	GenerateReply(ctx context.Context, instructions string, allowInterruptions bool) error
	// Done is closed once the session stops, either because the room connection went
	// away or because Close was called. Err then reports why.
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Agent is the conversational behavior attached to a session.
type Agent interface {
	OnEnter(ctx context.Context, s AgentSession) error
	HandleTurn(ctx context.Context, userText string)
}

// AgentFactory builds the agent for a participant once the session exists.
type AgentFactory func(s AgentSession, p Participant) (Agent, error)
