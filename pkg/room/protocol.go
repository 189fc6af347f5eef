package room

import (
	"encoding/json"
)

// Frame types exchanged with the realtime room service.
const (
	FrameJoin              = "join"
	FrameJoined            = "joined"
	FrameStartSession      = "start_session"
	FrameParticipantJoined = "participant_joined"
	FrameParticipantLeft   = "participant_left"
	FrameTranscript        = "transcript"
	FrameReplyDelta        = "reply_delta"
	FrameReplyDone         = "reply_done"
	FrameReplyInterrupted  = "reply_interrupted"
	FrameError             = "error"
)

// InputOptions are forwarded to the room's speech pipeline.
type InputOptions struct {
	NoiseCancellation   bool    `json:"noise_cancellation"`
	MinEndpointingDelay float64 `json:"min_endpointing_delay"`
	MaxEndpointingDelay float64 `json:"max_endpointing_delay"`
}

type JoinFrame struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	AgentName string `json:"agent_name"`
	Subscribe string `json:"subscribe"`
	Voice     string `json:"voice,omitempty"`
}

// StartSessionFrame asks the room to start speech processing for the agent session.
type StartSessionFrame struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Input     InputOptions `json:"input"`
}

type ParticipantInfo struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}

// IncomingFrame is any frame sent by the room service. Payload holds the provider's
// transcript event untouched.
type IncomingFrame struct {
	Type        string           `json:"type"`
	Room        string           `json:"room,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
	Final       *bool            `json:"final,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// IsFinal reports whether a transcript frame carries a final utterance. Frames without the
// flag are treated as final.
func (f *IncomingFrame) IsFinal() bool {
	return f.Final == nil || *f.Final
}

type ReplyFrame struct {
	Type               string `json:"type"`
	ReplyID            string `json:"reply_id"`
	Text               string `json:"text,omitempty"`
	AllowInterruptions bool   `json:"allow_interruptions,omitempty"`
}
