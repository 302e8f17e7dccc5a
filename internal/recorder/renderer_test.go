package recorder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tapedeck/internal/recorder"
	"tapedeck/internal/services"
	"tapedeck/internal/tape"
)

const stateEnv = "TAPEDECK_STATE_DIR"

type stubExecutor struct {
	mu       sync.Mutex
	dirs     []string
	commands []services.Command
	run      func(ctx context.Context, cmd services.Command, stateDir string) (services.Result, error)
}

func (s *stubExecutor) Run(ctx context.Context, cmd services.Command, onLine func(string)) (services.Result, error) {
	stateDir := envValue(cmd.Env, stateEnv)
	s.mu.Lock()
	s.dirs = append(s.dirs, stateDir)
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	if info, err := os.Stat(stateDir); err != nil || !info.IsDir() {
		return services.Result{}, errors.New("scratch dir missing during render")
	}
	if onLine != nil {
		onLine("recording " + filepath.Base(cmd.Args[0]))
	}
	if s.run != nil {
		return s.run(ctx, cmd, stateDir)
	}
	return services.Result{}, nil
}

func envValue(env []string, key string) string {
	value := ""
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			value = strings.TrimPrefix(kv, key+"=")
		}
	}
	return value
}

func newRenderer(t *testing.T, exec services.Executor, opts ...recorder.Option) (*recorder.Renderer, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "scratch")
	opts = append([]recorder.Option{
		recorder.WithExecutor(exec),
		recorder.WithStateEnv(stateEnv),
		recorder.WithBaseEnv(func() []string { return []string{"PATH=/usr/bin", stateEnv + "=/inherited"} }),
	}, opts...)
	r, err := recorder.New("vhs", root, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return r, root
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch root to be empty, found %d entries", len(entries))
	}
}

func TestRenderReturnsArtifactAndPassesEnv(t *testing.T) {
	exec := &stubExecutor{}
	r, root := newRenderer(t, exec, recorder.WithEnv([]string{"TERM=xterm"}), recorder.WithWorkDir("/project"))

	script := tape.Script{Name: "get", Path: "/project/tapes/get.tape", Output: "static/get.gif"}
	artifact, err := r.Render(context.Background(), script)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if artifact.Output != "static/get.gif" || artifact.Script.Name != "get" {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}

	cmd := exec.commands[0]
	if cmd.Binary != "vhs" || len(cmd.Args) != 1 || cmd.Args[0] != script.Path {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.Dir != "/project" {
		t.Fatalf("unexpected work dir: %q", cmd.Dir)
	}
	if envValue(cmd.Env, "TERM") != "xterm" {
		t.Fatalf("expected extra env, got %v", cmd.Env)
	}
	stateDir := exec.dirs[0]
	if filepath.Dir(stateDir) != root || !strings.HasPrefix(filepath.Base(stateDir), recorder.ScratchPrefix) {
		t.Fatalf("unexpected state dir: %q", stateDir)
	}
	count := 0
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, stateEnv+"=") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected inherited state var to be replaced, got %v", cmd.Env)
	}
	if value, ok := os.LookupEnv(stateEnv); ok && value == stateDir {
		t.Fatal("process environment was mutated")
	}
	assertEmptyDir(t, root)
}

func TestRenderUsesJobIDFromContext(t *testing.T) {
	exec := &stubExecutor{}
	r, root := newRenderer(t, exec)

	ctx := services.WithJobID(context.Background(), "fixed")
	if _, err := r.Render(ctx, tape.Script{Name: "get", Path: "get.tape", Output: "get.gif"}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if want := filepath.Join(root, recorder.ScratchPrefix+"fixed"); exec.dirs[0] != want {
		t.Fatalf("unexpected state dir: got %q want %q", exec.dirs[0], want)
	}
}

func TestConcurrentRendersUseDistinctScratchDirs(t *testing.T) {
	const jobs = 8
	var arrived sync.WaitGroup
	arrived.Add(jobs)
	release := make(chan struct{})
	exec := &stubExecutor{run: func(ctx context.Context, _ services.Command, _ string) (services.Result, error) {
		arrived.Done()
		select {
		case <-release:
		case <-ctx.Done():
			return services.Result{}, ctx.Err()
		}
		return services.Result{}, nil
	}}
	r, root := newRenderer(t, exec)

	go func() {
		arrived.Wait()
		close(release)
	}()

	var wg sync.WaitGroup
	errs := make([]error, jobs)
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Render(context.Background(), tape.Script{Name: "t", Path: "t.tape", Output: "t.gif"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("render %d returned error: %v", i, err)
		}
	}
	seen := map[string]struct{}{}
	for _, dir := range exec.dirs {
		seen[dir] = struct{}{}
	}
	if len(seen) != jobs {
		t.Fatalf("expected %d distinct scratch dirs, got %d", jobs, len(seen))
	}
	assertEmptyDir(t, root)
}

func TestRenderFailureReportsExitCodeAndCleansUp(t *testing.T) {
	exec := &stubExecutor{run: func(context.Context, services.Command, string) (services.Result, error) {
		return services.Result{ExitCode: 1, Output: []byte("starting\nboom\n")}, nil
	}}
	r, root := newRenderer(t, exec)

	_, err := r.Render(context.Background(), tape.Script{Name: "post", Path: "post.tape", Output: "post.gif"})
	var failed *recorder.RenderFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected RenderFailedError, got %v", err)
	}
	if failed.ExitCode != 1 || failed.Script.Name != "post" || !strings.Contains(failed.Output, "boom") {
		t.Fatalf("unexpected failure: %+v", failed)
	}
	if !strings.HasSuffix(failed.Error(), "boom") {
		t.Fatalf("expected last output line in message, got %q", failed.Error())
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	assertEmptyDir(t, root)
}

func TestRenderCancellationCleansUp(t *testing.T) {
	started := make(chan struct{})
	exec := &stubExecutor{run: func(ctx context.Context, _ services.Command, _ string) (services.Result, error) {
		close(started)
		<-ctx.Done()
		return services.Result{ExitCode: -1}, ctx.Err()
	}}
	r, root := newRenderer(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := r.Render(ctx, tape.Script{Name: "get", Path: "get.tape", Output: "get.gif"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertEmptyDir(t, root)
}

func TestRenderCancelledBeforeStartAllocatesNothing(t *testing.T) {
	exec := &stubExecutor{}
	r, root := newRenderer(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, tape.Script{Name: "get"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(exec.commands) != 0 {
		t.Fatalf("expected no recorder invocation, got %d", len(exec.commands))
	}
	if _, err := os.Stat(root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected scratch root to be untouched, got %v", err)
	}
}

func TestRenderTimeout(t *testing.T) {
	exec := &stubExecutor{run: func(ctx context.Context, _ services.Command, _ string) (services.Result, error) {
		<-ctx.Done()
		return services.Result{ExitCode: -1}, ctx.Err()
	}}
	r, root := newRenderer(t, exec, recorder.WithTimeout(20*time.Millisecond))

	_, err := r.Render(context.Background(), tape.Script{Name: "slow", Path: "slow.tape", Output: "slow.gif"})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if services.FailureKind(err) != services.FailureTimeout {
		t.Fatalf("unexpected failure kind: %q", services.FailureKind(err))
	}
	assertEmptyDir(t, root)
}

func TestRenderRequireOutput(t *testing.T) {
	workDir := t.TempDir()
	exec := &stubExecutor{}
	r, _ := newRenderer(t, exec, recorder.WithWorkDir(workDir), recorder.WithRequireOutput(true))

	script := tape.Script{Name: "get", Path: "get.tape", Output: "static/get.gif"}
	_, err := r.Render(context.Background(), script)
	var missing *recorder.MissingOutputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingOutputError, got %v", err)
	}
	if missing.Path != filepath.Join(workDir, "static", "get.gif") {
		t.Fatalf("unexpected path: %q", missing.Path)
	}

	if err := os.MkdirAll(filepath.Join(workDir, "static"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "static", "get.gif"), []byte("GIF89a"), 0o644); err != nil {
		t.Fatalf("write gif: %v", err)
	}
	if _, err := r.Render(context.Background(), script); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
}

func TestNewRequiresBinaryAndRoot(t *testing.T) {
	if _, err := recorder.New(" ", "/tmp"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := recorder.New("vhs", ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
