//go:build unix && !linux

package svcinit

import (
	"context"
	"syscall"
)

// Spawn starts the child by path. Without a way to exec an already open
// file the path is checked by opening it first and resolved again by the
// kernel at exec time. Namespaces are not available and are logged and
// ignored.
func (l *ExecLauncher) Spawn(ctx context.Context, req *LaunchRequest) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Op: OpSpawn, Service: req.Service, Err: err}
	}

	path, f, err := l.resolve(req)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	if req.Namespace != nil {
		l.log().Warn("namespaces unsupported on this platform", "service", req.Service, "method", req.Method, "err", ErrUnsupported)
	}

	cmd := l.command(path, req)
	if c := req.Credential; c != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid:    c.Uid,
				Gid:    c.Gid,
				Groups: c.Groups,
			},
		}
	}

	return l.start(cmd, path, req)
}
