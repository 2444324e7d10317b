package svcinit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Launcher starts the process described by a LaunchRequest.
type Launcher interface {
	// Spawn returns once the child has replaced its image or definitively
	// failed. It does not wait for the child to exit.
	Spawn(ctx context.Context, req *LaunchRequest) (Process, error)
}

// Process is a child started by a Launcher.
type Process interface {
	// Pid returns the process id in the supervisor's namespace
	Pid() int
	// Wait blocks until the process exits. If ctx ends first the process is
	// killed and the returned error wraps ErrTimeout on a deadline or the
	// context error otherwise.
	Wait(ctx context.Context) error
}

// ExecLauncher runs methods as real OS processes. The executable is opened
// in the supervisor before the child narrows its privileges.
type ExecLauncher struct {
	// Stdin, Stdout and Stderr default to the supervisor's own streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	logger *slog.Logger
}

// NewExecLauncher creates an ExecLauncher that logs to logger, or to
// slog.Default when logger is nil.
func NewExecLauncher(logger *slog.Logger) *ExecLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger,
	}
}

func (l *ExecLauncher) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

// resolve finds the executable for req using the supervisor's PATH and
// opens it.
func (l *ExecLauncher) resolve(req *LaunchRequest) (string, *os.File, error) {
	if len(req.Args) == 0 {
		return "", nil, &LaunchError{Op: OpSpawn, Service: req.Service, Err: ErrEmptyCommand}
	}
	path, err := exec.LookPath(req.Args[0])
	if err != nil {
		return req.Args[0], nil, &LaunchError{Op: OpOpen, Service: req.Service, Path: req.Args[0], Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return path, nil, &LaunchError{Op: OpOpen, Service: req.Service, Path: path, Err: err}
	}
	return path, f, nil
}

// command builds the parts of the exec.Cmd shared by every platform.
func (l *ExecLauncher) command(path string, req *LaunchRequest) *exec.Cmd {
	return &exec.Cmd{
		Path:   path,
		Args:   req.Args,
		Env:    req.Env,
		Dir:    req.Dir,
		Stdin:  l.Stdin,
		Stdout: l.Stdout,
		Stderr: l.Stderr,
	}
}

// start starts cmd and hands back a Process whose exit is collected in the
// background.
func (l *ExecLauncher) start(cmd *exec.Cmd, path string, req *LaunchRequest) (Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Op: OpSpawn, Service: req.Service, Path: path, Err: err}
	}

	p := &execProcess{
		cmd:     cmd,
		service: req.Service,
		path:    path,
		done:    make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	l.log().Debug("spawned", "service", req.Service, "method", req.Method, "pid", p.Pid(), "path", path)
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	service string
	path    string

	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		if p.err != nil {
			return &LaunchError{Op: OpWait, Service: p.service, Path: p.path, Err: p.err}
		}
		return nil
	case <-ctx.Done():
	}

	_ = p.cmd.Process.Kill()
	<-p.done

	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &LaunchError{Op: OpWait, Service: p.service, Path: p.path, Err: err}
}
