package llm

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ Generator = &OpenAIGenerator{}

func NewOpenAIGenerator(s Settings) (*OpenAIGenerator, error) {
	if s.APIKey == "" {
		return nil, errors.New("missing openai api key")
	}
	config := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}
	model := s.Engine
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: s.Temperature,
	}, nil
}

func (o *OpenAIGenerator) Model() string {
	return o.model
}

func (o *OpenAIGenerator) Stream(ctx context.Context, prompt Prompt, onDelta DeltaFunc) (Usage, error) {
	msgs := prompt.messages()
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		Temperature: o.temperature,
		Stream:      true,
	}
	// ask for token usage in the final chunk
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Usage{}, errors.Wrap(err, "openai chat completion stream")
	}
	defer stream.Close()

	var (
		sb       strings.Builder
		reported *openai.Usage
	)
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Usage{}, err
		}
		if response.Usage != nil {
			reported = response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return Usage{}, err
		}
	}

	if reported != nil {
		return Usage{
			PromptTokens:     reported.PromptTokens,
			CompletionTokens: reported.CompletionTokens,
		}, nil
	}
	return EstimateUsage(prompt, sb.String()), nil
}
