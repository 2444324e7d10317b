//go:build linux

package svcinit

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/axondata/go-svcinit/internal/unix"
)

// execFD is the descriptor the opened executable occupies in the child,
// the first of exec.Cmd.ExtraFiles.
const execFD = 3

// Spawn opens the executable in the supervisor's namespace and starts the
// child from that handle. The child enters its new namespaces, sets its
// groups, gid and uid, changes directory and then execs /proc/self/fd/3, so
// the executable path is never resolved again after the child has narrowed
// its view. The descriptor stays open in the service, which lets
// interpreter scripts read themselves.
func (l *ExecLauncher) Spawn(ctx context.Context, req *LaunchRequest) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Op: OpSpawn, Service: req.Service, Err: err}
	}

	path, f, err := l.resolve(req)
	if err != nil {
		return nil, err
	}
	// the child holds its own copy once started
	defer f.Close()

	cmd := l.command(fmt.Sprintf("/proc/self/fd/%d", execFD), req)
	cmd.ExtraFiles = []*os.File{f}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: l.cloneFlags(req),
	}
	if c := req.Credential; c != nil {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid:    c.Uid,
			Gid:    c.Gid,
			Groups: c.Groups,
		}
	}

	return l.start(cmd, path, req)
}

func (l *ExecLauncher) cloneFlags(req *LaunchRequest) uintptr {
	kinds, unknown := unix.Isolate(req.Namespace)
	for _, s := range unknown {
		l.log().Warn("unknown scheme in namespace ignored", "service", req.Service, "method", req.Method, "scheme", s)
	}
	if kinds != 0 {
		l.log().Debug("isolating", "service", req.Service, "method", req.Method, "kinds", kinds.String())
	}
	return unix.CloneFlags(kinds)
}
