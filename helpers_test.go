package svcinit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestLogger returns a debug logger writing into the returned buffer
func newTestLogger(t *testing.T) (*slog.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// countingLauncher records every spawn and lets tests script the outcome
// per service. Processes exit immediately unless delay or block is set.
type countingLauncher struct {
	mu sync.Mutex

	spawns   map[string]int
	requests []*LaunchRequest
	finished []string

	spawnErr map[string]error
	exitErr  map[string]error
	block    map[string]bool
	delay    time.Duration

	inflight    int
	maxInflight int

	// barrier is closed once barrierN processes are running at once
	barrierN int
	barrier  chan struct{}

	nextPid int
}

func newCountingLauncher() *countingLauncher {
	return &countingLauncher{
		spawns:   make(map[string]int),
		spawnErr: make(map[string]error),
		exitErr:  make(map[string]error),
		block:    make(map[string]bool),
		nextPid:  1000,
	}
}

// requireConcurrent makes every process wait until n are running together
func (l *countingLauncher) requireConcurrent(n int) {
	l.barrierN = n
	l.barrier = make(chan struct{})
}

func (l *countingLauncher) Spawn(ctx context.Context, req *LaunchRequest) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := req.Service + "." + req.Method
	l.spawns[key]++
	l.requests = append(l.requests, req)

	if err := l.spawnErr[req.Service]; err != nil {
		return nil, &LaunchError{Op: OpSpawn, Service: req.Service, Path: req.Args[0], Err: err}
	}

	l.inflight++
	if l.inflight > l.maxInflight {
		l.maxInflight = l.inflight
	}
	if l.barrier != nil && l.inflight == l.barrierN {
		close(l.barrier)
	}

	l.nextPid++
	return &countingProcess{
		l:       l,
		pid:     l.nextPid,
		service: req.Service,
		err:     l.exitErr[req.Service],
		block:   l.block[req.Service],
	}, nil
}

func (l *countingLauncher) count(service, method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spawns[service+"."+method]
}

func (l *countingLauncher) finishOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.finished...)
}

func (l *countingLauncher) lastRequest() *LaunchRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.requests) == 0 {
		return nil
	}
	return l.requests[len(l.requests)-1]
}

type countingProcess struct {
	l       *countingLauncher
	pid     int
	service string
	err     error
	block   bool
}

func (p *countingProcess) Pid() int {
	return p.pid
}

func (p *countingProcess) Wait(ctx context.Context) error {
	defer func() {
		p.l.mu.Lock()
		p.l.inflight--
		p.l.finished = append(p.l.finished, p.service)
		p.l.mu.Unlock()
	}()

	if p.l.barrier != nil {
		select {
		case <-p.l.barrier:
		case <-time.After(2 * time.Second):
			return fmt.Errorf("%s: fewer than %d processes ran concurrently", p.service, p.l.barrierN)
		}
	}

	if p.block {
		<-ctx.Done()
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return &LaunchError{Op: OpWait, Service: p.service, Err: err}
	}

	if p.l.delay > 0 {
		select {
		case <-time.After(p.l.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.err != nil {
		return &LaunchError{Op: OpWait, Service: p.service, Err: p.err}
	}
	return nil
}

// testService builds a minimal service with a start method
func testService(name string, deps ...string) *Service {
	return &Service{
		Name:         name,
		Dependencies: deps,
		Methods: map[string]*Method{
			MethodStart: {Cmd: []string{"/bin/true"}},
		},
	}
}

// newTestRegistry returns a registry backed by a countingLauncher
func newTestRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *countingLauncher, *syncBuffer) {
	t.Helper()
	logger, buf := newTestLogger(t)
	l := newCountingLauncher()
	opts = append([]RegistryOption{WithLauncher(l), WithLogger(logger)}, opts...)
	return NewRegistry(opts...), l, buf
}
