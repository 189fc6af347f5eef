package supervisor

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// DefaultStopTimeout is how long a child gets to exit after SIGTERM before it is killed.
const DefaultStopTimeout = 10 * time.Second

// ExecSpawner runs a command with the supervisor's stdout, stderr and environment.
type ExecSpawner struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	// StopTimeout is the grace period between SIGTERM and SIGKILL. Zero means
	// DefaultStopTimeout.
	StopTimeout time.Duration
}

var _ Spawner = &ExecSpawner{}

// NewSelfSpawner re-executes the current binary with args, e.g. "agent".
func NewSelfSpawner(args ...string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "locate executable")
	}
	return &ExecSpawner{Path: exe, Args: args}, nil
}

// Spawn starts the command. Cancelling ctx stops the child the same way Stop does.
func (e *ExecSpawner) Spawn(ctx context.Context) (Process, error) {
	grace := e.StopTimeout
	if grace <= 0 {
		grace = DefaultStopTimeout
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", e.Path)
	}
	return &execProcess{cmd: cmd, grace: grace, exited: make(chan struct{})}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	grace  time.Duration
	exited chan struct{}
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	close(p.exited)
	// after a cancelled context Wait reports ctx.Err() even for a clean exit
	if state := p.cmd.ProcessState; state != nil {
		return state.ExitCode(), nil
	}
	return -1, err
}

// Stop sends SIGTERM and kills the child if it is still running after the grace period.
func (p *execProcess) Stop() error {
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return errors.Wrap(err, "signal agent")
	}
	go func() {
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.exited:
		case <-timer.C:
			_ = p.cmd.Process.Kill()
		}
	}()
	return nil
}
