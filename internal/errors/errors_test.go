package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurboError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TurboError
		expected string
	}{
		{
			name:     "message only",
			err:      &TurboError{Message: "something failed"},
			expected: "something failed",
		},
		{
			name:     "with package",
			err:      &TurboError{Package: "web", Message: "no package.json"},
			expected: "[web] no package.json",
		},
		{
			name:     "with package and task",
			err:      &TurboError{Package: "web", Task: "build", Message: "command exited (1)"},
			expected: "web#build: command exited (1)",
		},
		{
			name:     "task without package not included",
			err:      &TurboError{Task: "build", Message: "something failed"},
			expected: "something failed",
		},
		{
			name:     "empty message falls back to cause",
			err:      &TurboError{Cause: errors.New("boom")},
			expected: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTurboError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, "wrapper")

	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, New("no cause").Unwrap())
}

func TestTurboError_ExitCode(t *testing.T) {
	tests := []struct {
		name     string
		kind     ErrorKind
		expected int
	}{
		{"runtime", KindRuntime, ExitRuntimeError},
		{"config", KindConfig, ExitConfigError},
		{"execution", KindExecution, ExitRuntimeError},
		{"transport", KindTransport, ExitRuntimeError},
		{"cache integrity", KindCacheIntegrity, ExitRuntimeError},
		{"environment", KindEnvironment, ExitEnvironmentError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &TurboError{Kind: tt.kind}
			assert.Equal(t, tt.expected, err.ExitCode())
			assert.Equal(t, tt.name, tt.kind.String())
		})
	}
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, KindConfig, Configf("bad %s", "x").Kind)
	assert.Equal(t, "bad x", Configf("bad %s", "x").Message)
	assert.Equal(t, KindRuntime, New("boom").Kind)
	assert.Equal(t, KindEnvironment, Environmentf("no %s", "git").Kind)

	exec := Execution("lib", "build", 2, nil)
	assert.Equal(t, KindExecution, exec.Kind)
	assert.Equal(t, "lib#build: command exited (2)", exec.Error())

	integrity := CacheIntegrity("abc", "signature mismatch")
	assert.Equal(t, KindCacheIntegrity, integrity.Kind)
	assert.Contains(t, integrity.Error(), "abc")

	transport := Transport("remote cache unreachable", errors.New("dial tcp"))
	assert.Equal(t, KindTransport, transport.Kind)
}

func TestIsKind(t *testing.T) {
	inner := Transport("put failed", errors.New("timeout"))
	outer := Wrap(inner, "storing artifact")
	wrapped := fmt.Errorf("run: %w", outer)

	assert.True(t, IsKind(wrapped, KindTransport))
	assert.True(t, IsKind(wrapped, KindRuntime))
	assert.False(t, IsKind(wrapped, KindConfig))
	assert.False(t, IsKind(errors.New("plain"), KindRuntime))
	assert.False(t, IsKind(nil, KindRuntime))
}

type codedError struct{ code int }

func (c codedError) Error() string { return "coded" }
func (c codedError) ExitCode() int { return c.code }

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("x"), ExitRuntimeError},
		{"config", Config("x"), ExitConfigError},
		{"wrapped config", fmt.Errorf("loading: %w", Config("x")), ExitConfigError},
		{"custom coded", codedError{code: ExitConfigError}, ExitConfigError},
		{"joined picks most severe", errors.Join(Execution("a", "b", 1, nil), Config("x")), ExitConfigError},
		{"joined plain", errors.Join(errors.New("a"), errors.New("b")), ExitRuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetExitCode(tt.err))
		})
	}
}
