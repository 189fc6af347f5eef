package dispatch

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) HandleTurn(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.texts...)
	sort.Strings(out)
	return out
}

type providerEvent struct {
	alternatives []string
}

func (p providerEvent) TranscriptText() string {
	if len(p.alternatives) == 0 {
		return ""
	}
	return p.alternatives[0]
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		event    interface{}
		expected string
		errKind  error
	}{
		{name: "text key", event: map[string]interface{}{"text": " hello "}, expected: "hello"},
		{name: "transcript key when text empty", event: map[string]interface{}{"text": "", "transcript": "hi"}, expected: "hi"},
		{name: "transcript key when text absent", event: map[string]interface{}{"transcript": "hey"}, expected: "hey"},
		{name: "map without keys", event: map[string]interface{}{"other": 1}, expected: ""},
		{name: "string map", event: map[string]string{"text": "typed"}, expected: "typed"},
		{name: "non string text", event: map[string]interface{}{"text": 42}, errKind: ErrNormalization},
		{name: "sequence first element", event: []interface{}{"yo", 0.9}, expected: "yo"},
		{name: "string slice", event: []string{" first ", "second"}, expected: "first"},
		{name: "array", event: [2]string{"arr", "x"}, expected: "arr"},
		{name: "sequence with non string head", event: []interface{}{1, "x"}, errKind: ErrNormalization},
		{name: "empty sequence is opaque", event: []interface{}{}, expected: "[]"},
		{name: "plain string", event: "  spoken  ", expected: "spoken"},
		{name: "whitespace string", event: "   ", expected: ""},
		{name: "nil", event: nil, expected: "<nil>"},
		{name: "number", event: 12, expected: "12"},
		{name: "carrier", event: providerEvent{alternatives: []string{" carried "}}, expected: "carried"},
		{name: "explicit variant", event: KeyedEvent{Fields: map[string]interface{}{"text": "direct"}}, expected: "direct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Normalize(tt.event)
			if tt.errKind != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.errKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

func TestDispatcherScenario(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(context.Background(), rec)

	d.OnTranscriptEvent(map[string]interface{}{"text": " hi "})
	d.OnTranscriptEvent(map[string]interface{}{"transcript": "yo"})
	d.OnTranscriptEvent([]interface{}{"a", "b"})
	d.OnTranscriptEvent("   ")
	d.OnTranscriptEvent(map[string]interface{}{"text": ""})
	d.OnTranscriptEvent([]interface{}{3})
	d.Wait()

	assert.Equal(t, []string{"a", "hi", "yo"}, rec.sorted())
}

func TestDispatcherDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 3)
	handler := TurnHandlerFunc(func(_ context.Context, text string) {
		started <- text
		<-release
	})
	d := NewDispatcher(context.Background(), handler)

	done := make(chan struct{})
	go func() {
		d.OnTranscriptEvent("one")
		d.OnTranscriptEvent("two")
		d.OnTranscriptEvent("three")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnTranscriptEvent blocked on a running turn")
	}

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("turns did not run concurrently")
		}
	}
	close(release)
	d.Wait()
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var turnErr error
	handler := TurnHandlerFunc(func(ctx context.Context, _ string) {
		turnErr = ctx.Err()
	})
	d := NewDispatcher(ctx, handler)
	cancel()

	d.OnTranscriptEvent("still answered")
	d.Wait()
	assert.NoError(t, turnErr)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	handler := TurnHandlerFunc(func(context.Context, string) {
		panic("boom")
	})
	d := NewDispatcher(context.Background(), handler)

	require.NotPanics(t, func() {
		d.OnTranscriptEvent(panickyCarrier{})
		d.OnTranscriptEvent("fine")
		d.Wait()
	})
}

type panickyCarrier struct{}

func (panickyCarrier) TranscriptText() string { panic("bad event") }
