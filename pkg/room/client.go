package room

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-go-golems/waldo/pkg/llm"
	"github.com/go-go-golems/waldo/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("room not connected")

// Config locates the realtime room service and the room to join.
type Config struct {
	URL       string `mapstructure:"url" yaml:"url"`
	APIKey    string `mapstructure:"api-key" yaml:"api-key"`
	Name      string `mapstructure:"name" yaml:"name"`
	AgentName string `mapstructure:"agent-name" yaml:"agent-name"`
	// Voice is the synthesized voice the room uses for replies.
	Voice string `mapstructure:"voice" yaml:"voice"`
	// JoinTimeout bounds the wait for the joined acknowledgement.
	JoinTimeout time.Duration `mapstructure:"join-timeout" yaml:"join-timeout"`
}

// Client is a websocket connection to one room. It implements session.Room.
type Client struct {
	cfg       Config
	generator llm.Generator
	dialer    *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu           sync.Mutex
	sessionID    string
	participants chan session.Participant
	frames       chan *IncomingFrame
	done         chan struct{}
	closing      chan struct{}
	closeOnce    sync.Once
	readErr      error
}

var _ session.Room = &Client{}

// NewClient prepares a client; replies for sessions it creates are produced by generator.
func NewClient(cfg Config, generator llm.Generator) *Client {
	if cfg.AgentName == "" {
		cfg.AgentName = "waldo"
	}
	if cfg.Voice == "" {
		cfg.Voice = "Puck"
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	return &Client{
		cfg:          cfg,
		generator:    generator,
		dialer:       websocket.DefaultDialer,
		participants: make(chan session.Participant, 1),
		frames:       make(chan *IncomingFrame, 64),
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
	}
}

func (c *Client) Name() string {
	return c.cfg.Name
}

// Connect dials the room service, sends the join frame and waits for the acknowledgement.
func (c *Client) Connect(ctx context.Context, sub session.Subscription) error {
	if c.cfg.URL == "" {
		return errors.New("room url is required")
	}
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.cfg.URL)
	}
	c.conn = conn

	join := JoinFrame{
		Type:      FrameJoin,
		Room:      c.cfg.Name,
		AgentName: c.cfg.AgentName,
		Subscribe: string(sub),
		Voice:     c.cfg.Voice,
	}
	if err := c.send(join); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "send join frame")
	}

	deadline, _ := dialCtx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	var ack IncomingFrame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "read join acknowledgement")
	}
	if ack.Type == FrameError {
		_ = conn.Close()
		return errors.Errorf("join rejected: %s", ack.Message)
	}
	if ack.Type != FrameJoined {
		_ = conn.Close()
		return errors.Errorf("unexpected frame %q while joining", ack.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.sessionID = ack.SessionID
	c.mu.Unlock()
	log.Debug().Str("room", c.cfg.Name).Str("session_id", ack.SessionID).Msg("Joined room")

	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.frames)
	for {
		var frame IncomingFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Room connection closed")
			}
			return
		}

		switch frame.Type {
		case FrameParticipantJoined:
			if frame.Participant == nil {
				continue
			}
			p := session.Participant{Identity: frame.Participant.Identity, Name: frame.Participant.Name}
			select {
			case c.participants <- p:
			default:
			}
		case FrameError:
			log.Warn().Str("message", frame.Message).Msg("Room service reported an error")
			continue
		}

		select {
		case c.frames <- &frame:
		case <-c.closing:
			return
		}
	}
}

// WaitForParticipant returns the first participant that joined the room.
func (c *Client) WaitForParticipant(ctx context.Context) (session.Participant, error) {
	if c.conn == nil {
		return session.Participant{}, ErrNotConnected
	}
	select {
	case p := <-c.participants:
		return p, nil
	case <-c.done:
		return session.Participant{}, errors.Wrap(c.err(), "room closed before a participant joined")
	case <-ctx.Done():
		return session.Participant{}, ctx.Err()
	}
}

// NewAgentSession creates the session delivering this room's frames.
func (c *Client) NewAgentSession(opts session.Options) (session.AgentSession, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if c.generator == nil {
		return nil, errors.New("room client has no reply generator")
	}
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	return newSession(c, id, opts)
}

func (c *Client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		return ErrNotConnected
	}
	return c.readErr
}

// Close says goodbye to the room service and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.closeOnce.Do(func() { close(c.closing) })
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent leaving"),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}
