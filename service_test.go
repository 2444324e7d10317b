package svcinit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteEnv(t *testing.T) {
	t.Setenv("SVCINIT_TEST_PORT", "8080")

	s := &Service{
		Name: "httpd",
		Methods: map[string]*Method{
			MethodStart: {Cmd: []string{"/usr/bin/httpd", "--port", "$SVCINIT_TEST_PORT", " $SVCINIT_TEST_UNSET ", "a$b"}},
			MethodStop:  {Cmd: []string{"/bin/kill", "  $SVCINIT_TEST_PORT"}},
		},
	}
	s.SubstituteEnv()

	assert.Equal(t, []string{"/usr/bin/httpd", "--port", "8080", "", "a$b"}, s.Methods[MethodStart].Cmd)
	assert.Equal(t, []string{"/bin/kill", "8080"}, s.Methods[MethodStop].Cmd)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		svc     *Service
		wantErr error
	}{
		{
			name: "valid",
			svc:  testService("a"),
		},
		{
			name: "no methods",
			svc:  &Service{Name: "a"},
		},
		{
			name:    "empty command",
			svc:     &Service{Name: "a", Methods: map[string]*Method{MethodStart: {}}},
			wantErr: ErrEmptyCommand,
		},
		{
			name:    "nil method",
			svc:     &Service{Name: "a", Methods: map[string]*Method{MethodStop: nil}},
			wantErr: ErrEmptyCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.svc.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Error(t, (&Service{}).Validate())
}

func TestClone(t *testing.T) {
	clearEnv := false
	s := &Service{
		Name:         "a",
		Dependencies: []string{"b"},
		Provides:     []string{"x:"},
		Env:          map[string]string{"K": "v"},
		ClearEnv:     &clearEnv,
		Namespace:    Schemes{},
		Methods: map[string]*Method{
			MethodStart: {Cmd: []string{"/bin/a"}, Env: map[string]string{"M": "1"}},
		},
	}

	c := s.Clone()
	c.Dependencies[0] = "changed"
	c.Env["K"] = "changed"
	*c.ClearEnv = true
	c.Methods[MethodStart].Cmd[0] = "changed"
	c.Methods[MethodStart].Env["M"] = "changed"

	assert.Equal(t, "b", s.Dependencies[0])
	assert.Equal(t, "v", s.Env["K"])
	assert.False(t, *s.ClearEnv)
	assert.Equal(t, "/bin/a", s.Methods[MethodStart].Cmd[0])
	assert.Equal(t, "1", s.Methods[MethodStart].Env["M"])

	require.NotNil(t, c.Namespace)
	assert.Empty(t, c.Namespace)
	assert.Nil(t, (*Service)(nil).Clone())
}

func TestRequestMergesDefaults(t *testing.T) {
	logger, _ := newTestLogger(t)

	s := &Service{
		Name:      "a",
		Env:       map[string]string{"SERVICE": "1"},
		Cwd:       "/srv",
		Namespace: Schemes{"file:"},
		Timeout:   time.Second,
		Methods: map[string]*Method{
			MethodStart: {Cmd: []string{"/bin/a", "start"}},
			MethodStop: {
				Cmd:       []string{"/bin/a", "stop"},
				Env:       map[string]string{"METHOD": "1"},
				Cwd:       "/tmp",
				Namespace: Schemes{},
				Timeout:   5 * time.Second,
			},
		},
	}

	start, err := s.Request(MethodStart, logger)
	require.NoError(t, err)
	assert.Equal(t, "a", start.Service)
	assert.Equal(t, MethodStart, start.Method)
	assert.Equal(t, []string{"/bin/a", "start"}, start.Args)
	assert.Equal(t, []string{"SERVICE=1"}, start.Env)
	assert.Equal(t, "/srv", start.Dir)
	assert.Equal(t, []string{"file:"}, start.Namespace)
	assert.Equal(t, time.Second, start.Timeout)
	assert.Nil(t, start.Credential)

	stop, err := s.Request(MethodStop, logger)
	require.NoError(t, err)
	// a method env replaces the service env entirely
	assert.Equal(t, []string{"METHOD=1"}, stop.Env)
	assert.Equal(t, "/tmp", stop.Dir)
	require.NotNil(t, stop.Namespace)
	assert.Empty(t, stop.Namespace)
	assert.Equal(t, 5*time.Second, stop.Timeout)

	_, err = s.Request(MethodRestart, logger)
	assert.ErrorIs(t, err, ErrMissingMethod)
}

func TestRequestNamespaceInherited(t *testing.T) {
	logger, _ := newTestLogger(t)
	req, err := testService("a").Request(MethodStart, logger)
	require.NoError(t, err)
	assert.Nil(t, req.Namespace)
}

func TestRequestEnvironment(t *testing.T) {
	t.Setenv("SVCINIT_TEST_INHERITED", "yes")
	logger, _ := newTestLogger(t)

	s := testService("a")
	s.Env = map[string]string{"SVCINIT_TEST_INHERITED": "override", "B": "2", "A": "1"}

	req, err := s.Request(MethodStart, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=2", "SVCINIT_TEST_INHERITED=override"}, req.Env)

	keep := false
	s.ClearEnv = &keep
	s.Env = map[string]string{"B": "2"}
	req, err = s.Request(MethodStart, logger)
	require.NoError(t, err)
	assert.Contains(t, req.Env, "SVCINIT_TEST_INHERITED=yes")
	assert.Contains(t, req.Env, "B=2")
	assert.IsIncreasing(t, req.Env)
}

func TestWaitMethod(t *testing.T) {
	logger, _ := newTestLogger(t)
	l := newCountingLauncher()

	s := testService("a")
	s.Methods[MethodStop] = &Method{Cmd: []string{"/bin/stop-a"}}

	require.NoError(t, s.WaitMethod(context.Background(), MethodStop, l, logger))
	assert.Equal(t, []string{"/bin/stop-a"}, l.lastRequest().Args)

	l.exitErr["a"] = errors.New("exit status 2")
	err := s.WaitMethod(context.Background(), MethodStart, l, logger)
	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "a", le.Service)
}
