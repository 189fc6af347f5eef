package turn

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/waldo/pkg/rag"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReplySubmitter queues a reply for generation. It returns once the request is accepted;
// the reply itself is produced asynchronously.
type ReplySubmitter interface {
	GenerateReply(ctx context.Context, instructions string, allowInterruptions bool) error
}

// Request is a single user utterance to answer.
type Request struct {
	UserText  string
	Timestamp time.Time
}

type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeReplied  Outcome = "replied"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// OutcomeHook observes how each turn ended and how long it took to submit.
type OutcomeHook func(outcome Outcome, retrieved int, elapsed time.Duration)

// Pipeline turns a user utterance into a context-augmented reply request. A Pipeline holds
// no per-turn state and is safe to run concurrently.
type Pipeline struct {
	retriever      rag.Retriever
	submitter      ReplySubmitter
	topK           int
	maxCharsPerDoc int
	base           string
	now            func() time.Time
	onOutcome      OutcomeHook
}

type Option func(*Pipeline)

func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

func WithMaxCharsPerDoc(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxCharsPerDoc = n
		}
	}
}

// WithInstructions replaces the persona instructions placed at the top of every turn.
func WithInstructions(base string) Option {
	return func(p *Pipeline) {
		if strings.TrimSpace(base) != "" {
			p.base = base
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithOutcomeHook(h OutcomeHook) Option {
	return func(p *Pipeline) {
		p.onOutcome = h
	}
}

func NewPipeline(retriever rag.Retriever, submitter ReplySubmitter, options ...Option) *Pipeline {
	ret := &Pipeline{
		retriever:      retriever,
		submitter:      submitter,
		topK:           rag.DefaultTopK,
		maxCharsPerDoc: rag.DefaultMaxCharsPerDoc,
		base:           DefaultPersona,
		now:            time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// HandleTurn answers userText. Failures are logged, never returned.
func (p *Pipeline) HandleTurn(ctx context.Context, userText string) {
	_ = p.Run(ctx, Request{UserText: userText, Timestamp: p.now()})
}

// Run retrieves context for the request, submits the augmented instruction and falls back
// to FallbackReply once if the submission is rejected. A nil error means a reply (augmented
// or fallback) was accepted, or the text was empty.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	text := strings.TrimSpace(req.UserText)
	if text == "" {
		p.report(OutcomeSkipped, 0, req.Timestamp)
		return nil
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = p.now()
	}

	log.Debug().Str("user_text", text).Msg("RAG retrieval for user text")

	docs := p.retrieve(ctx, text)
	contextBlock := ""
	if len(docs) > 0 {
		contextBlock = rag.FormatContext(docs, p.maxCharsPerDoc)
	}
	instruction := BuildInstruction(p.base, contextBlock, text)

	err := p.submitter.GenerateReply(ctx, instruction.String(), true)
	if err == nil {
		p.report(OutcomeReplied, len(docs), req.Timestamp)
		return nil
	}

	err = withKind(ErrSubmission, err)
	log.Error().Err(err).Str("user_text", text).Msg("Failed to generate reply, sending fallback")

	if fbErr := p.submitter.GenerateReply(ctx, FallbackReply, true); fbErr != nil {
		fbErr = withKind(ErrFallbackFailed, errors.Wrapf(fbErr, "after %v", err))
		log.Error().Err(fbErr).Str("user_text", text).Msg("Fallback reply failed, abandoning turn")
		p.report(OutcomeFailed, len(docs), req.Timestamp)
		return fbErr
	}

	p.report(OutcomeFallback, len(docs), req.Timestamp)
	return nil
}

func (p *Pipeline) retrieve(ctx context.Context, text string) []rag.Document {
	if p.retriever == nil {
		return nil
	}
	docs, err := p.retriever.Search(ctx, text, p.topK)
	if err != nil {
		log.Warn().Err(err).Str("user_text", text).Msg("Retriever failure, falling back to no-context reply")
		return nil
	}
	return docs
}

func (p *Pipeline) report(outcome Outcome, retrieved int, start time.Time) {
	if p.onOutcome == nil {
		return
	}
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = p.now().Sub(start)
	}
	p.onOutcome(outcome, retrieved, elapsed)
}
