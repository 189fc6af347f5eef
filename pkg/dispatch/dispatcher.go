package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TurnHandler answers a single normalized utterance.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userText string)
}

// TurnHandlerFunc adapts a function to TurnHandler.
type TurnHandlerFunc func(ctx context.Context, userText string)

func (f TurnHandlerFunc) HandleTurn(ctx context.Context, userText string) {
	f(ctx, userText)
}

// Dispatcher turns raw transcript events into concurrent turns. Each non-empty event starts
// exactly one turn on its own goroutine; OnTranscriptEvent never waits for it.
type Dispatcher struct {
	ctx     context.Context
	handler TurnHandler
	wg      sync.WaitGroup
}

// NewDispatcher schedules turns on handler. Turns inherit the values of ctx but not its
// cancellation, so a shutdown lets in-flight turns finish.
func NewDispatcher(ctx context.Context, handler TurnHandler) *Dispatcher {
	return &Dispatcher{
		ctx:     context.WithoutCancel(ctx),
		handler: handler,
	}
}

// OnTranscriptEvent normalizes event and schedules a turn for it. Normalization failures
// and panics are logged; nothing is returned to the caller.
func (d *Dispatcher) OnTranscriptEvent(event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", describe(event)).
				Interface("panic", r).
				Msg("Error handling transcript event")
		}
	}()

	text, err := Normalize(event)
	if err != nil {
		log.Warn().Err(err).Str("event", describe(event)).Msg("Dropping transcript event")
		return
	}
	if text == "" {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Err(errors.Errorf("%v", r)).
					Str("user_text", text).
					Msg("Turn panicked")
			}
		}()
		d.handler.HandleTurn(d.ctx, text)
	}()
}

// Wait blocks until every scheduled turn has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func describe(event interface{}) string {
	return fmt.Sprintf("%#v", event)
}
