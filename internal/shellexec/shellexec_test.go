package shellexec

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell semantics assumed")
	}
	var out bytes.Buffer
	code, err := Run(context.Background(), Spec{Cmd: "echo hello", Stdout: &out, Stderr: &out})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", out.String())
}

func TestRunReturnsNonzeroExitCode(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(context.Background(), Spec{Cmd: "exit 7", Stdout: &out, Stderr: &out})
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestRunHonorsEnv(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(context.Background(), Spec{
		Cmd:    "echo $FOO",
		Env:    []string{"FOO=bar"},
		Stdout: &out,
		Stderr: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "bar\n", out.String())
}

func TestRunHonorsDir(t *testing.T) {
	var out bytes.Buffer
	dir := t.TempDir()
	code, err := Run(context.Background(), Spec{Cmd: "pwd", Dir: dir, Stdout: &out, Stderr: &out})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, dir+"\n", out.String())
}

func TestRunParseErrorIsDistinctFromExitFailure(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(context.Background(), Spec{Cmd: "if (", Stdout: &out, Stderr: &out})
	require.Error(t, err)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	_, err := Run(ctx, Spec{Cmd: "sleep 5", Stdout: &out, Stderr: &out, GracePeriod: 10 * time.Millisecond})
	require.Error(t, err)
}
