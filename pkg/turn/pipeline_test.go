package turn

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/waldo/pkg/rag"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submission struct {
	instructions       string
	allowInterruptions bool
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []submission
	fn    func(call int, instructions string) error
}

func (f *fakeSubmitter) GenerateReply(_ context.Context, instructions string, allowInterruptions bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, submission{instructions: instructions, allowInterruptions: allowInterruptions})
	n := len(f.calls)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(n, instructions)
	}
	return nil
}

func staticRetriever(docs []rag.Document, err error) (rag.Retriever, *int) {
	calls := 0
	return rag.RetrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		calls++
		return docs, err
	}), &calls
}

func score(f float32) *float32 { return &f }

func TestPipelineEmptyTextIsNoop(t *testing.T) {
	retriever, retrievals := staticRetriever(nil, nil)
	submitter := &fakeSubmitter{}
	p := NewPipeline(retriever, submitter)

	for _, text := range []string{"", "   ", "\n\t"} {
		require.NoError(t, p.Run(context.Background(), Request{UserText: text}))
	}
	assert.Equal(t, 0, *retrievals)
	assert.Empty(t, submitter.calls)
}

func TestPipelineSubmitsAugmentedInstruction(t *testing.T) {
	var gotK int
	var gotQuery string
	retriever := rag.RetrieverFunc(func(_ context.Context, query string, k int) ([]rag.Document, error) {
		gotQuery, gotK = query, k
		return []rag.Document{
			{Content: "Drink fluids and rest.", Score: score(0.8), Metadata: map[string]string{"source": "webmd"}},
		}, nil
	})
	submitter := &fakeSubmitter{}
	p := NewPipeline(retriever, submitter, WithInstructions("You are a test persona."))

	p.HandleTurn(context.Background(), "  what helps with a cold?  ")

	assert.Equal(t, "what helps with a cold?", gotQuery)
	assert.Equal(t, rag.DefaultTopK, gotK)
	require.Len(t, submitter.calls, 1)

	call := submitter.calls[0]
	assert.True(t, call.allowInterruptions)
	assert.True(t, strings.HasPrefix(call.instructions, "You are a test persona.\n\n"))
	assert.Contains(t, call.instructions, SafetyNotice)
	assert.Contains(t, call.instructions, ContextGuidance)
	assert.Contains(t, call.instructions, rag.ContextHeader)
	assert.Contains(t, call.instructions, "[1] (score=0.8000) [source=webmd]\nDrink fluids and rest.")
	assert.True(t, strings.HasSuffix(call.instructions, "User question: what helps with a cold?\n\nAnswer succinctly and clearly."))
}

func TestPipelineRetrievalFailureStillReplies(t *testing.T) {
	retriever, _ := staticRetriever(nil, errors.Wrap(rag.ErrRetrieval, "index offline"))
	submitter := &fakeSubmitter{}
	p := NewPipeline(retriever, submitter)

	require.NoError(t, p.Run(context.Background(), Request{UserText: "is ibuprofen safe?"}))
	require.Len(t, submitter.calls, 1)

	instructions := submitter.calls[0].instructions
	assert.Contains(t, instructions, SafetyNotice)
	assert.NotContains(t, instructions, rag.ContextHeader)
	assert.Contains(t, instructions, ContextGuidance+"\n\n\nUser question: is ibuprofen safe?")
}

func TestPipelineNoDocumentsLeavesContextEmpty(t *testing.T) {
	retriever, _ := staticRetriever([]rag.Document{}, nil)
	submitter := &fakeSubmitter{}
	p := NewPipeline(retriever, submitter)

	p.HandleTurn(context.Background(), "hello")
	require.Len(t, submitter.calls, 1)
	assert.NotContains(t, submitter.calls[0].instructions, rag.ContextHeader)
	assert.Contains(t, submitter.calls[0].instructions, SafetyNotice)
}

func TestPipelineFallback(t *testing.T) {
	t.Run("fallback sent once after submission error", func(t *testing.T) {
		retriever, _ := staticRetriever(nil, nil)
		submitter := &fakeSubmitter{fn: func(call int, _ string) error {
			if call == 1 {
				return errors.New("generator busy")
			}
			return nil
		}}
		var outcomes []Outcome
		p := NewPipeline(retriever, submitter, WithOutcomeHook(func(o Outcome, _ int, _ time.Duration) {
			outcomes = append(outcomes, o)
		}))

		require.NoError(t, p.Run(context.Background(), Request{UserText: "hi"}))
		require.Len(t, submitter.calls, 2)
		assert.Equal(t, FallbackReply, submitter.calls[1].instructions)
		assert.True(t, submitter.calls[1].allowInterruptions)
		assert.Equal(t, []Outcome{OutcomeFallback}, outcomes)
	})

	t.Run("fallback failure abandons the turn", func(t *testing.T) {
		retriever, _ := staticRetriever(nil, nil)
		submitter := &fakeSubmitter{fn: func(int, string) error {
			return errors.New("session closed")
		}}
		p := NewPipeline(retriever, submitter)

		var err error
		require.NotPanics(t, func() {
			err = p.Run(context.Background(), Request{UserText: "hi"})
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFallbackFailed))
		assert.Len(t, submitter.calls, 2)
	})
}

func TestPipelineOptions(t *testing.T) {
	var gotK int
	retriever := rag.RetrieverFunc(func(_ context.Context, _ string, k int) ([]rag.Document, error) {
		gotK = k
		return []rag.Document{{Content: "alpha beta gamma delta"}}, nil
	})
	submitter := &fakeSubmitter{}

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * time.Second)
	}
	var elapsed time.Duration
	var retrieved int
	p := NewPipeline(retriever, submitter,
		WithTopK(5),
		WithMaxCharsPerDoc(10),
		WithClock(clock),
		WithOutcomeHook(func(_ Outcome, n int, d time.Duration) {
			retrieved, elapsed = n, d
		}),
	)

	p.HandleTurn(context.Background(), "query")
	assert.Equal(t, 5, gotK)
	require.Len(t, submitter.calls, 1)
	assert.Contains(t, submitter.calls[0].instructions, "alpha beta...")
	assert.Equal(t, 1, retrieved)
	assert.Equal(t, time.Second, elapsed)
}

func TestInstructionString(t *testing.T) {
	instr := BuildInstruction("base", "", "question?")
	expected := "base\n\n" + SafetyNotice + "\n\n" + ContextGuidance + "\n\n" +
		"\nUser question: question?\n\nAnswer succinctly and clearly."
	assert.Equal(t, expected, instr.String())
}
