package session

import (
	"context"

	"github.com/go-go-golems/waldo/pkg/rag"
	"github.com/go-go-golems/waldo/pkg/turn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const Greeting = "Hey, I am Waldo The Wellness Warrior, how can I help you today?"

// GreetingInstruction makes the generator say Greeting verbatim.
const GreetingInstruction = "Ignore all previous instructions. Respond **exactly as written**, without changing anything: " + Greeting

// Assistant greets the participant and answers each utterance through a turn pipeline.
type Assistant struct {
	pipeline *turn.Pipeline
}

var _ Agent = &Assistant{}

func NewAssistant(pipeline *turn.Pipeline) *Assistant {
	return &Assistant{pipeline: pipeline}
}

// NewAssistantFactory binds a pipeline to each new session.
func NewAssistantFactory(retriever rag.Retriever, options ...turn.Option) AgentFactory {
	return func(s AgentSession, p Participant) (Agent, error) {
		log.Debug().Str("participant", p.Identity).Msg("Creating assistant")
		return NewAssistant(turn.NewPipeline(retriever, s, options...)), nil
	}
}

func (a *Assistant) OnEnter(ctx context.Context, s AgentSession) error {
	if err := s.GenerateReply(ctx, GreetingInstruction, true); err != nil {
		return errors.Wrap(err, "send greeting")
	}
	return nil
}

func (a *Assistant) HandleTurn(ctx context.Context, userText string) {
	a.pipeline.HandleTurn(ctx, userText)
}
