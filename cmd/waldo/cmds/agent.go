package cmds

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/waldo/pkg/config"
	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/go-go-golems/waldo/pkg/llm"
	"github.com/go-go-golems/waldo/pkg/metrics"
	"github.com/go-go-golems/waldo/pkg/room"
	"github.com/go-go-golems/waldo/pkg/session"
	"github.com/go-go-golems/waldo/pkg/turn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Join the room and answer the participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				s.Metrics.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return RunAgent(ctx, s)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// RunAgent builds the shared retriever and generator once, then runs a single session
// until ctx is cancelled.
func RunAgent(ctx context.Context, s *config.Settings) error {
	provider, err := embeddings.NewProvider(s.Embeddings)
	if err != nil {
		return errors.Wrap(err, "create embeddings provider")
	}
	retriever, err := buildRetriever(s, provider)
	if err != nil {
		return errors.Wrap(err, "open knowledge base")
	}
	generator, err := llm.NewGenerator(ctx, s.LLM)
	if err != nil {
		return errors.Wrap(err, "create reply generator")
	}

	collector := metrics.NewCollector("waldo")
	factory := session.NewAssistantFactory(retriever,
		turn.WithTopK(s.Retrieval.TopK),
		turn.WithMaxCharsPerDoc(s.Retrieval.MaxCharsPerDoc),
		turn.WithInstructions(s.Persona.Instructions),
		turn.WithOutcomeHook(func(o turn.Outcome, retrieved int, elapsed time.Duration) {
			collector.ObserveTurn(string(o), retrieved, elapsed)
		}),
	)

	client := room.NewClient(s.Room, generator)
	controller := session.NewController(client, factory,
		session.WithOptions(s.Session.Options()),
		session.WithMetricsSink(collector),
		session.WithDrainTimeout(s.Session.DrainTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, s.Metrics.Addr, collector.Handler())
		})
	}
	g.Go(func() error {
		defer func() {
			summary := collector.Summary()
			log.Info().
				Int("prompt_tokens", summary.LLMPromptTokens).
				Int("completion_tokens", summary.LLMCompletionTokens).
				Int("replies", summary.Replies).
				Int("transcripts", summary.Transcripts).
				Interface("turns", summary.Turns).
				Msg("Usage summary")
		}()
		return controller.Run(gctx)
	})

	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
