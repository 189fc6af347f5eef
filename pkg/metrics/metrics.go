package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event kinds reported on the metrics_collected hook.
const (
	KindLLM        = "llm"
	KindReply      = "reply"
	KindTranscript = "transcript"
)

// Event is one metrics sample emitted by the room session.
type Event struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	ReplyID   string    `json:"reply_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	// Estimated is set when token counts come from a local tokenizer.
	Estimated bool `json:"estimated,omitempty"`

	TimeToFirstToken time.Duration `json:"ttft,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	Interrupted      bool          `json:"interrupted,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// UsageSummary aggregates usage over the lifetime of a session.
type UsageSummary struct {
	LLMPromptTokens     int
	LLMCompletionTokens int
	Replies             int
	InterruptedReplies  int
	FailedReplies       int
	Transcripts         int
	Turns               map[string]int
}

// Collector logs metrics events, keeps a UsageSummary and exports Prometheus series.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	turnDuration     prometheus.Histogram
	retrievedDocs    prometheus.Histogram
	repliesTotal     *prometheus.CounterVec
	replyDuration    prometheus.Histogram
	timeToFirstToken prometheus.Histogram
	tokensTotal      *prometheus.CounterVec
	transcriptsTotal prometheus.Counter

	mu      sync.Mutex
	summary UsageSummary
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "waldo"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns handled by outcome",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_submit_duration_seconds",
			Help:      "Time from transcript to accepted reply request",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		retrievedDocs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_documents",
			Help:      "Documents retrieved per turn",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Generated replies by status",
		}, []string{"status"}),
		replyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_duration_seconds",
			Help:      "Reply generation duration",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		timeToFirstToken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_ttft_seconds",
			Help:      "Time to the first streamed token",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "LLM tokens by direction",
		}, []string{"model", "direction"}),
		transcriptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Final transcripts received",
		}),
		summary: UsageSummary{Turns: map[string]int{}},
	}

	c.registry.MustRegister(
		c.turnsTotal,
		c.turnDuration,
		c.retrievedDocs,
		c.repliesTotal,
		c.replyDuration,
		c.timeToFirstToken,
		c.tokensTotal,
		c.transcriptsTotal,
	)
	return c
}

// OnMetrics is registered on the session's metrics_collected hook.
func (c *Collector) OnMetrics(ev Event) {
	LogMetrics(log.Logger, ev)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case KindLLM:
		c.summary.LLMPromptTokens += ev.PromptTokens
		c.summary.LLMCompletionTokens += ev.CompletionTokens
		c.tokensTotal.WithLabelValues(ev.Model, "prompt").Add(float64(ev.PromptTokens))
		c.tokensTotal.WithLabelValues(ev.Model, "completion").Add(float64(ev.CompletionTokens))
		if ev.TimeToFirstToken > 0 {
			c.timeToFirstToken.Observe(ev.TimeToFirstToken.Seconds())
		}
	case KindReply:
		c.summary.Replies++
		status := "done"
		switch {
		case ev.Error != "":
			status = "error"
			c.summary.FailedReplies++
		case ev.Interrupted:
			status = "interrupted"
			c.summary.InterruptedReplies++
		}
		c.repliesTotal.WithLabelValues(status).Inc()
		if ev.Duration > 0 {
			c.replyDuration.Observe(ev.Duration.Seconds())
		}
	case KindTranscript:
		c.summary.Transcripts++
		c.transcriptsTotal.Inc()
	}
}

// ObserveTurn records how a turn ended. Its signature matches turn.OutcomeHook once the
// outcome is converted to a string.
func (c *Collector) ObserveTurn(outcome string, retrieved int, elapsed time.Duration) {
	c.mu.Lock()
	c.summary.Turns[outcome]++
	c.mu.Unlock()

	c.turnsTotal.WithLabelValues(outcome).Inc()
	if outcome == "skipped" {
		return
	}
	c.retrievedDocs.Observe(float64(retrieved))
	if elapsed > 0 {
		c.turnDuration.Observe(elapsed.Seconds())
	}
}

// Summary returns a copy of the aggregated usage.
func (c *Collector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := c.summary
	ret.Turns = make(map[string]int, len(c.summary.Turns))
	for k, v := range c.summary.Turns {
		ret.Turns[k] = v
	}
	return ret
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's series in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// LogMetrics writes ev as a single structured log line.
func LogMetrics(logger zerolog.Logger, ev Event) {
	e := logger.Info().Str("kind", ev.Kind)
	if ev.SessionID != "" {
		e = e.Str("session_id", ev.SessionID)
	}
	if ev.ReplyID != "" {
		e = e.Str("reply_id", ev.ReplyID)
	}
	switch ev.Kind {
	case KindLLM:
		e = e.Str("model", ev.Model).
			Int("prompt_tokens", ev.PromptTokens).
			Int("completion_tokens", ev.CompletionTokens).
			Bool("estimated", ev.Estimated).
			Dur("ttft", ev.TimeToFirstToken)
	case KindReply:
		e = e.Dur("duration", ev.Duration).Bool("interrupted", ev.Interrupted)
		if ev.Error != "" {
			e = e.Str("error", ev.Error)
		}
	}
	e.Msg("metrics collected")
}
