package llm

import (
	"context"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Prompt is what a reply is generated from. Instructions are sent as the last user turn,
// after History.
type Prompt struct {
	Instructions string
	History      []Message
}

// Usage reports token counts for one reply. Estimated is set when the backend did not
// report usage and the counts come from the local tokenizer.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Estimated        bool
}

// DeltaFunc receives streamed text. Returning an error stops the stream.
type DeltaFunc func(delta string) error

// Generator streams a reply for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt Prompt, onDelta DeltaFunc) (Usage, error)
	Model() string
}

const (
	TypeGemini = "gemini"
	TypeOpenAI = "openai"
	TypeOllama = "ollama"
)

// DefaultTemperature matches the realtime model configuration the agent was tuned with.
const DefaultTemperature float32 = 0.8

// Settings selects and configures the reply generator.
type Settings struct {
	Type        string  `mapstructure:"type" yaml:"type"`
	Engine      string  `mapstructure:"engine" yaml:"engine"`
	APIKey      string  `mapstructure:"api-key" yaml:"api-key"`
	BaseURL     string  `mapstructure:"base-url" yaml:"base-url"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
}

// NewGenerator builds the generator described by s.
func NewGenerator(ctx context.Context, s Settings) (Generator, error) {
	if s.Temperature == 0 {
		s.Temperature = DefaultTemperature
	}
	switch s.Type {
	case TypeGemini, "":
		return NewGeminiGenerator(ctx, s)
	case TypeOpenAI:
		return NewOpenAIGenerator(s)
	case TypeOllama:
		return NewOllamaGenerator(s)
	default:
		return nil, errors.Errorf("unsupported llm type: %s", s.Type)
	}
}

// messages flattens prompt into history followed by the instructions.
func (p Prompt) messages() []Message {
	ret := make([]Message, 0, len(p.History)+1)
	for _, m := range p.History {
		if m.Content == "" {
			continue
		}
		ret = append(ret, m)
	}
	return append(ret, Message{Role: RoleUser, Content: p.Instructions})
}
