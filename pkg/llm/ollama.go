package llm

import (
	"context"
	"strings"

	"github.com/go-go-golems/waldo/pkg/helpers"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
)

const DefaultOllamaModel = "llama3"

// OllamaGenerator talks to the Ollama server named by OLLAMA_HOST.
type OllamaGenerator struct {
	client      *api.Client
	model       string
	temperature float32
}

var _ Generator = &OllamaGenerator{}

func NewOllamaGenerator(s Settings) (*OllamaGenerator, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "create ollama client")
	}
	model := s.Engine
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaGenerator{
		client:      client,
		model:       model,
		temperature: s.Temperature,
	}, nil
}

func (o *OllamaGenerator) Model() string {
	return o.model
}

func (o *OllamaGenerator) Stream(ctx context.Context, prompt Prompt, onDelta DeltaFunc) (Usage, error) {
	msgs := prompt.messages()
	ollamaMessages := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: ollamaMessages,
		Stream:   helpers.Ptr(true),
		Options: map[string]interface{}{
			"temperature": o.temperature,
		},
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		delta := messageContent(resp.Message)
		if delta == "" {
			return nil
		}
		sb.WriteString(delta)
		return onDelta(delta)
	})
	if err != nil {
		return Usage{}, errors.Wrap(err, "ollama chat")
	}

	return EstimateUsage(prompt, sb.String()), nil
}

// messageContent reads the streamed text whether the response carries the message by
// value or by pointer.
func messageContent(m interface{}) string {
	switch v := m.(type) {
	case *api.Message:
		if v != nil {
			return v.Content
		}
	case api.Message:
		return v.Content
	}
	return ""
}
