package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRestartDelay is the pause between a child exit and its restart.
const DefaultRestartDelay = 5 * time.Second

type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateSleeping   State = "sleeping"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Status is a snapshot of the supervised process.
type Status struct {
	PID          int       `json:"pid"`
	StartTime    time.Time `json:"start_time"`
	RestartCount int       `json:"restart_count"`
	State        State     `json:"state"`
	LastExitCode int       `json:"last_exit_code"`
}

// Process is a running child.
type Process interface {
	PID() int
	// Wait blocks until the child exits and returns its exit code.
	Wait() (int, error)
	// Stop asks the child to exit. Wait reports when it did.
	Stop() error
}

// Spawner starts the child process.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
}

// Clock abstracts time for the restart delay.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor keeps a child process running, restarting it after every exit.
type Supervisor struct {
	spawner Spawner
	clock   Clock
	delay   time.Duration

	mu     sync.Mutex
	status Status
}

type Option func(*Supervisor)

func WithClock(c Clock) Option {
	return func(s *Supervisor) {
		s.clock = c
	}
}

func WithRestartDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.delay = d
		}
	}
}

func New(spawner Spawner, options ...Option) *Supervisor {
	ret := &Supervisor{
		spawner: spawner,
		clock:   realClock{},
		delay:   DefaultRestartDelay,
		status:  Status{State: StateStopped, PID: -1},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) update(f func(st *Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.status)
}

// Run supervises the child until ctx is cancelled. There is no retry limit; a child that
// fails to spawn counts as an exit with code -1. Cancellation kills the running child and
// returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.update(func(st *Status) { st.State = StateStarting })

		code := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.stop()
			return nil
		}

		s.update(func(st *Status) {
			st.State = StateSleeping
			st.LastExitCode = code
			st.PID = -1
		})
		log.Warn().Int("exit_code", code).Dur("delay", s.delay).Msg("agent exited, restarting")

		if err := s.clock.Sleep(ctx, s.delay); err != nil {
			s.stop()
			return nil
		}

		s.update(func(st *Status) {
			st.State = StateRestarting
			st.RestartCount++
		})
	}
}

func (s *Supervisor) runOnce(ctx context.Context) int {
	proc, err := s.spawner.Spawn(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start agent")
		return -1
	}

	s.update(func(st *Status) {
		st.State = StateRunning
		st.PID = proc.PID()
		st.StartTime = s.clock.Now()
	})
	log.Info().Int("pid", proc.PID()).Msg("Agent started")

	type result struct {
		code int
		err  error
	}
	exited := make(chan result, 1)
	go func() {
		code, err := proc.Wait()
		exited <- result{code: code, err: err}
	}()

	select {
	case r := <-exited:
		if r.err != nil {
			log.Warn().Err(r.err).Int("pid", proc.PID()).Msg("Agent wait failed")
		}
		return r.code
	case <-ctx.Done():
		log.Info().Int("pid", proc.PID()).Msg("Stopping agent")
		if err := proc.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop agent")
		}
		r := <-exited
		return r.code
	}
}

func (s *Supervisor) stop() {
	s.update(func(st *Status) {
		st.State = StateStopped
		st.PID = -1
	})
	log.Info().Msg("Supervisor stopped")
}
