//go:build !unix

package svcinit

import "context"

// Spawn is not supported on this platform.
func (l *ExecLauncher) Spawn(ctx context.Context, req *LaunchRequest) (Process, error) {
	return nil, &LaunchError{Op: OpSpawn, Service: req.Service, Err: ErrUnsupported}
}
