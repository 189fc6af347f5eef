package cmds

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/waldo/pkg/config"
	"github.com/go-go-golems/waldo/pkg/supervisor"
	"github.com/go-go-golems/waldo/pkg/web"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the health endpoint and keep the agent process alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return RunServe(ctx, s, viper.ConfigFileUsed())
		},
	}
}

// Serve is the host process: the HTTP health server next to the agent supervisor.
type Serve struct {
	Supervisor *supervisor.Supervisor
	Server     *web.Server
}

func NewServe(s *config.Settings, configPath string) (*Serve, error) {
	spawner, err := agentSpawner(s.Supervisor, configPath)
	if err != nil {
		return nil, err
	}
	return &Serve{
		Supervisor: supervisor.New(spawner, supervisor.WithRestartDelay(s.Supervisor.RestartDelay)),
		Server:     web.NewServer(s.HTTP),
	}, nil
}

// Run blocks until ctx is cancelled or the listener fails. Agent crashes are restarted.
func (sv *Serve) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sv.Server.Run(gctx)
	})
	g.Go(func() error {
		return sv.Supervisor.Run(gctx)
	})

	err := g.Wait()
	st := sv.Supervisor.Status()
	log.Info().
		Int("restarts", st.RestartCount).
		Int("last_exit_code", st.LastExitCode).
		Msg("Supervisor stopped")
	return err
}

func RunServe(ctx context.Context, s *config.Settings, configPath string) error {
	sv, err := NewServe(s, configPath)
	if err != nil {
		return err
	}
	return sv.Run(ctx)
}

func agentSpawner(s config.SupervisorSettings, configPath string) (supervisor.Spawner, error) {
	if len(s.Command) > 0 {
		return &supervisor.ExecSpawner{
			Path:        s.Command[0],
			Args:        s.Command[1:],
			StopTimeout: s.StopTimeout,
		}, nil
	}
	args := []string{"agent"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	spawner, err := supervisor.NewSelfSpawner(args...)
	if err != nil {
		return nil, errors.Wrap(err, "create agent spawner")
	}
	spawner.StopTimeout = s.StopTimeout
	return spawner, nil
}
