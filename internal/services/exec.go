package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Command describes a single external process invocation.
type Command struct {
	Binary string
	Args   []string
	// Dir is the working directory. Empty inherits the caller's.
	Dir string
	// Env is the complete child environment. Nil inherits the caller's.
	Env []string
}

// Result captures what an external process produced.
type Result struct {
	// Output holds stdout and stderr lines interleaved in arrival order.
	Output   []byte
	ExitCode int
}

// Executor abstracts command execution for testability.
//
// A non-zero exit status is reported through Result.ExitCode with a nil
// error. The error is reserved for processes that could not be started or
// that were stopped because ctx ended.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(string)) (Result, error)
}

// waitDelay bounds how long Wait blocks on inherited pipes after the child
// has been killed.
const waitDelay = 5 * time.Second

// CommandExecutor runs commands with os/exec.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, command Command, onLine func(string)) (Result, error) {
	if command.Binary == "" {
		return Result{}, errors.New("command binary required")
	}
	cmd := exec.CommandContext(ctx, command.Binary, command.Args...) //nolint:gosec
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	cmd.WaitDelay = waitDelay
	// The child leads its own process group so cancellation reaches every
	// process it spawned, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd.Process.Pid) }

	sink := &outputSink{onLine: onLine}
	cmd.Stdout = sink.stream()
	cmd.Stderr = sink.stream()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", command.Binary, err)
	}

	waitErr := cmd.Wait()
	result := Result{Output: sink.close()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s interrupted: %w", command.Binary, ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("wait %s: %w", command.Binary, waitErr)
	}
	return result, nil
}

func killGroup(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}

// outputSink interleaves several process streams into one buffer and
// forwards complete lines as they arrive.
type outputSink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	onLine  func(string)
	streams []*lineWriter
}

func (s *outputSink) stream() io.Writer {
	w := &lineWriter{sink: s}
	s.streams = append(s.streams, w)
	return w
}

func (s *outputSink) emit(line []byte) {
	s.buf.Write(line)
	s.buf.WriteByte('\n')
	if s.onLine != nil {
		s.onLine(string(line))
	}
}

// close flushes unterminated trailing lines and returns the captured output.
func (s *outputSink) close() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.streams {
		if len(w.partial) > 0 {
			s.emit(w.partial)
			w.partial = nil
		}
	}
	return s.buf.Bytes()
}

type lineWriter struct {
	sink    *outputSink
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	data := append(w.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		w.sink.emit(bytes.TrimSuffix(data[:idx], []byte{'\r'}))
		data = data[idx+1:]
	}
	w.partial = append([]byte(nil), data...)
	return len(p), nil
}
