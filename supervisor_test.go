package svcinit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, cfg *Config, opts ...SupervisorOption) (*Supervisor, *countingLauncher, *syncBuffer) {
	t.Helper()
	logger, logs := newTestLogger(t)
	l := newCountingLauncher()
	opts = append([]SupervisorOption{WithRegistryOptions(WithLauncher(l))}, opts...)
	return NewSupervisor(cfg, logger, opts...), l, logs
}

func TestSupervisorBoot(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "netd.yaml", "provides: [\"tcp:\"]\nmethods: {start: {cmd: [/sbin/netd]}}\n")
	writeDescriptor(t, dir, "httpd.yaml", "dependencies: [\"tcp:\"]\nmethods: {start: {cmd: [/sbin/httpd]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{dir, filepath.Join(dir, "missing")}

	var notified int
	sup, l, logs := newTestSupervisor(t, cfg, WithNotifier(func() error {
		notified++
		return nil
	}))

	require.NoError(t, sup.Boot(context.Background()))
	assert.Equal(t, 1, notified)
	assert.Equal(t, []string{"netd", "httpd"}, l.finishOrder())
	assert.Equal(t, 2, sup.Registry().Len())
	assert.Contains(t, logs.String(), "boot directory skipped")
}

func TestSupervisorBootNotifiesOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "db.yaml", "methods: {start: {cmd: [/sbin/db]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{dir}

	var notified bool
	sup, l, logs := newTestSupervisor(t, cfg, WithNotifier(func() error {
		notified = true
		return errors.New("no socket")
	}))
	l.exitErr["db"] = errors.New("exit status 1")

	err := sup.Boot(context.Background())
	require.Error(t, err)
	assert.True(t, notified)
	assert.Contains(t, logs.String(), "readiness notification failed")

	idx, ok := sup.Registry().Lookup("db")
	require.True(t, ok)
	st, _ := sup.Registry().State(idx)
	assert.Equal(t, StateFailed, st)
}

func TestSupervisorChainLoad(t *testing.T) {
	boot := t.TempDir()
	root := t.TempDir()
	writeDescriptor(t, boot, "fsd.yaml", "provides: [\"file:\"]\nmethods: {start: {cmd: [/sbin/fsd]}}\n")
	writeDescriptor(t, root, "logd.yaml", "dependencies: [\"file:\"]\nmethods: {start: {cmd: [/sbin/logd]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{boot}
	cfg.Chain = []ChainLoad{{Provides: "file:", Dir: root}}

	sup, l, _ := newTestSupervisor(t, cfg)
	require.NoError(t, sup.Boot(context.Background()))

	assert.Equal(t, []string{"fsd", "logd"}, l.finishOrder())
	idx, ok := sup.Registry().Lookup("logd")
	require.True(t, ok)
	st, _ := sup.Registry().State(idx)
	assert.Equal(t, StateOnline, st)
}

func TestSupervisorChainLoadWaitsForBootPass(t *testing.T) {
	boot := t.TempDir()
	root := t.TempDir()
	writeDescriptor(t, boot, "fsd.yaml", "provides: [\"file:\"]\nmethods: {start: {cmd: [/sbin/fsd]}}\n")
	writeDescriptor(t, boot, "netd.yaml", "dependencies: [fsd]\nmethods: {start: {cmd: [/sbin/netd]}}\n")
	writeDescriptor(t, root, "httpd.yaml", "dependencies: [netd]\nmethods: {start: {cmd: [/sbin/httpd]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{boot}
	cfg.Chain = []ChainLoad{{Provides: "file:", Dir: root}}

	sup, l, _ := newTestSupervisor(t, cfg)
	require.NoError(t, sup.Boot(context.Background()))

	assert.Equal(t, []string{"fsd", "netd", "httpd"}, l.finishOrder())
	idx, ok := sup.Registry().Lookup("httpd")
	require.True(t, ok)
	st, _ := sup.Registry().State(idx)
	assert.Equal(t, StateOnline, st)
}

func TestSupervisorChainLoadFailureReachesBoot(t *testing.T) {
	boot := t.TempDir()
	root := t.TempDir()
	writeDescriptor(t, boot, "fsd.yaml", "provides: [\"file:\"]\nmethods: {start: {cmd: [/sbin/fsd]}}\n")
	writeDescriptor(t, boot, "db.yaml", "methods: {start: {cmd: [/sbin/db]}}\n")
	writeDescriptor(t, root, "app.yaml", "dependencies: [db]\nmethods: {start: {cmd: [/sbin/app]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{boot}
	cfg.Chain = []ChainLoad{
		{Provides: "file:", Dir: root},
		{Provides: "fsd", Dir: filepath.Join(root, "missing")},
	}

	var notified bool
	sup, l, _ := newTestSupervisor(t, cfg, WithNotifier(func() error {
		notified = true
		return nil
	}))
	l.exitErr["db"] = errors.New("exit status 1")

	err := sup.Boot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyNotOnline)
	assert.True(t, notified)

	var merr *MultiError
	require.ErrorAs(t, err, &merr)
	// db failed, app skipped in the chain batch, missing chain dir
	assert.Len(t, merr.Errors, 3)

	idx, ok := sup.Registry().Lookup("app")
	require.True(t, ok)
	st, _ := sup.Registry().State(idx)
	assert.Equal(t, StateOffline, st)
}

func TestSupervisorExportsEnv(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "httpd.yaml", "methods: {start: {cmd: [/sbin/httpd, $SVCINIT_TEST_EXPORTED]}}\n")
	t.Setenv("SVCINIT_TEST_EXPORTED", "")

	cfg := DefaultConfig()
	cfg.Dirs = []string{dir}
	cfg.Env = map[string]string{"SVCINIT_TEST_EXPORTED": "8080"}

	sup, l, _ := newTestSupervisor(t, cfg)
	require.NoError(t, sup.Boot(context.Background()))
	assert.Equal(t, []string{"/sbin/httpd", "8080"}, l.lastRequest().Args)
}

func TestSupervisorStateFile(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", "methods: {start: {cmd: [/sbin/a]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{dir}
	cfg.StateFile = filepath.Join(t.TempDir(), "state.yaml")

	sup, _, _ := newTestSupervisor(t, cfg)
	require.NoError(t, sup.Boot(context.Background()))

	got, err := ReadStateFile(cfg.StateFile)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StateOnline, got[0].State)
}

func TestSupervisorRunWatchesDirs(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", "methods: {start: {cmd: [/sbin/a]}}\n")

	cfg := DefaultConfig()
	cfg.Dirs = []string{dir}
	cfg.Watch = true

	sup, l, _ := newTestSupervisor(t, cfg)
	sup.loader.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return l.count("a", MethodStart) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, renameio.WriteFile(filepath.Join(dir, "b.yaml"), []byte("dependencies: [a]\nmethods: {start: {cmd: [/sbin/b]}}\n"), FileMode))
	require.Eventually(t, func() bool { return l.count("b", MethodStart) == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// a was only ever started once
	assert.Equal(t, 1, l.count("a", MethodStart))
}
