package supervisor

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

// ExecLauncher runs the server as a child process in its own process group.
type ExecLauncher struct {
	// Executable defaults to the running binary.
	Executable string
	Args       []string
	Dir        string
	Logger     *slog.Logger
}

// ServeLauncher re-executes the running binary as "serve --dir <dir>" plus extra args.
func ServeLauncher(dir string, extra ...string) *ExecLauncher {
	return &ExecLauncher{
		Args: append([]string{"serve", "--dir", dir}, extra...),
		Dir:  dir,
	}
}

func (l *ExecLauncher) executable() (string, error) {
	if l.Executable != "" {
		return exec.LookPath(l.Executable)
	}
	return os.Executable()
}

// Check resolves the executable.
func (l *ExecLauncher) Check() error {
	_, err := l.executable()
	return err
}

// Launch starts the child with env. Its stdout and stderr are forwarded line by line
// to the logger.
func (l *ExecLauncher) Launch(env []string) (Process, error) {
	exe, err := l.executable()
	if err != nil {
		return nil, err
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("process", "server"))

	cmd := exec.Command(exe, l.Args...)
	cmd.Env = env
	cmd.Dir = l.Dir
	out := &lineLogger{logger: logger}
	cmd.Stdout = out
	cmd.Stderr = out
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", exe, err)
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		out.flush()
		close(p.done)
	}()
	logger.Debug("Launched server process", logfields.PID(cmd.Process.Pid))
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Terminate(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := interrupt(p.cmd); err != nil {
		return err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}
	if err := kill(p.cmd); err != nil {
		return err
	}
	<-p.done
	return nil
}

// lineLogger logs each complete line written to it.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	buf    bytes.Buffer
}

func (w *lineLogger) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(b)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line; keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(b), nil
		}
		if msg := trimEOL(line); msg != "" {
			w.logger.Info(msg)
		}
	}
}

func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if msg := trimEOL(w.buf.String()); msg != "" {
		w.logger.Info(msg)
	}
	w.buf.Reset()
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
