package llm

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/waldo/pkg/helpers"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

var _ Generator = &GeminiGenerator{}

func NewGeminiGenerator(ctx context.Context, s Settings) (*GeminiGenerator, error) {
	if s.APIKey == "" {
		return nil, errors.New("missing gemini api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      s.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: s.BaseURL},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	model := s.Engine
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: s.Temperature,
	}, nil
}

func (g *GeminiGenerator) Model() string {
	return g.model
}

func (g *GeminiGenerator) Stream(ctx context.Context, prompt Prompt, onDelta DeltaFunc) (Usage, error) {
	msgs := prompt.messages()
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	config := &genai.GenerateContentConfig{Temperature: helpers.Ptr(g.temperature)}

	var (
		sb    strings.Builder
		usage *genai.GenerateContentResponseUsageMetadata
	)
	for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Usage{}, errors.Wrap(err, "gemini stream")
		}
		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata
		}
		delta := chunk.Text()
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return Usage{}, err
		}
	}

	if usage != nil && usage.PromptTokenCount > 0 {
		return Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
		}, nil
	}
	return EstimateUsage(prompt, sb.String()), nil
}
