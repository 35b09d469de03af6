//go:build unix

package supervisor

import (
	"bytes"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecLauncher_TerminateProcessGroup(t *testing.T) {
	requireSh(t)
	l := &ExecLauncher{Executable: "sh", Args: []string{"-c", "sleep 30 & wait"}}
	require.NoError(t, l.Check())

	p, err := l.Launch(nil)
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	require.NoError(t, p.Terminate(2*time.Second))
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.Error(t, p.Err(), "terminated by signal")
}

func TestExecLauncher_ForwardsOutputAndExit(t *testing.T) {
	requireSh(t)
	var buf bytes.Buffer
	l := &ExecLauncher{
		Executable: "sh",
		Args:       []string{"-c", `echo "listening on $PORT"; exit 3`},
		Logger:     slog.New(slog.NewTextHandler(&buf, nil)),
	}

	p, err := l.Launch([]string{"PORT=8080"})
	require.NoError(t, err)
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit")
	}

	var exitErr *exec.ExitError
	require.ErrorAs(t, p.Err(), &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Contains(t, buf.String(), `msg="listening on 8080"`)
	assert.Contains(t, buf.String(), "process=server")
	assert.NoError(t, p.Terminate(time.Second), "terminating an exited process is a no-op")
}

func TestExecLauncher_CheckMissingExecutable(t *testing.T) {
	l := &ExecLauncher{Executable: "definitely-not-a-wayfind-binary"}
	assert.Error(t, l.Check())
	_, err := l.Launch(nil)
	assert.Error(t, err)
}

func TestServeLauncher(t *testing.T) {
	l := ServeLauncher("/srv/display", "--upstream", "http://example.test")
	assert.Equal(t, []string{"serve", "--dir", "/srv/display", "--upstream", "http://example.test"}, l.Args)
	assert.Equal(t, "/srv/display", l.Dir)
	assert.NoError(t, l.Check())
}

func TestLineLogger(t *testing.T) {
	var buf bytes.Buffer
	w := &lineLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}
	_, _ = w.Write([]byte("first\r\nsec"))
	_, _ = w.Write([]byte("ond\n"))
	_, _ = w.Write([]byte("tail"))
	w.flush()

	out := buf.String()
	assert.Contains(t, out, "msg=first")
	assert.Contains(t, out, "msg=second")
	assert.Contains(t, out, "msg=tail")
}
