package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"tapedeck/internal/batch"
	"tapedeck/internal/config"
	"tapedeck/internal/history"
	"tapedeck/internal/pipeline"
	"tapedeck/internal/recorder"
	"tapedeck/internal/services"
	"tapedeck/internal/tape"
	"tapedeck/internal/testsupport"
)

// fakeTools stands in for the recorder, git, and the pre-build command.
type fakeTools struct {
	mu         sync.Mutex
	stateEnv   string
	failTapes  map[string]bool
	scratch    []string
	builds     int
	buildExit  int
	head       string
	lastCommit map[string]string
}

func (f *fakeTools) Run(_ context.Context, cmd services.Command, onLine func(string)) (services.Result, error) {
	switch filepath.Base(cmd.Binary) {
	case "vhs":
		return f.record(cmd)
	case "git":
		return f.git(cmd)
	default:
		f.mu.Lock()
		f.builds++
		f.mu.Unlock()
		if onLine != nil {
			onLine("Compiling app")
		}
		return services.Result{ExitCode: f.buildExit}, nil
	}
}

func (f *fakeTools) record(cmd services.Command) (services.Result, error) {
	stateDir := ""
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, f.stateEnv+"=") {
			stateDir = strings.TrimPrefix(kv, f.stateEnv+"=")
		}
	}
	f.mu.Lock()
	f.scratch = append(f.scratch, stateDir)
	f.mu.Unlock()

	if err := os.WriteFile(filepath.Join(stateDir, "app.db"), []byte("state"), 0o644); err != nil {
		return services.Result{}, err
	}
	name := strings.TrimSuffix(filepath.Base(cmd.Args[0]), ".tape")
	if f.failTapes[name] {
		return services.Result{ExitCode: 1, Output: []byte("recording failed\n")}, nil
	}
	output, err := tape.DeclaredOutput(cmd.Args[0])
	if err != nil {
		return services.Result{}, err
	}
	target := filepath.Join(cmd.Dir, output)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return services.Result{}, err
	}
	return services.Result{}, os.WriteFile(target, []byte("GIF89a"), 0o644)
}

func (f *fakeTools) git(cmd services.Command) (services.Result, error) {
	switch cmd.Args[0] {
	case "rev-parse":
		return services.Result{Output: []byte(f.head + "\n")}, nil
	case "log":
		path := cmd.Args[len(cmd.Args)-1]
		return services.Result{Output: []byte(f.lastCommit[path])}, nil
	}
	return services.Result{ExitCode: 1}, nil
}

func setup(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, *fakeTools) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	testsupport.WriteTape(t, cfg, "get", "static/get.gif", `Type "curl localhost/items"`)
	testsupport.WriteTape(t, cfg, "post", "static/post.gif", `Type "curl -X POST localhost/items"`)
	return cfg, &fakeTools{stateEnv: cfg.Recorder.StateEnv, failTapes: map[string]bool{}}
}

func assertScratchRemoved(t *testing.T, dirs []string) {
	t.Helper()
	for _, dir := range dirs {
		if dir == "" {
			t.Fatal("recorder received no scratch dir")
		}
		if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("scratch dir %s still exists", dir)
		}
	}
}

func TestGenerateWritesReviewInInputOrder(t *testing.T) {
	cfg, tools := setup(t)
	store := testsupport.MustOpenHistory(t, cfg)

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools), pipeline.WithLedger(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	result, err := p.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	got, err := os.ReadFile(cfg.Paths.ReviewFile)
	if err != nil {
		t.Fatalf("read review: %v", err)
	}
	want := "static/get.gif\n\n![](static/get.gif)\n\nstatic/post.gif\n\n![](static/post.gif)\n\n"
	if string(got) != want {
		t.Fatalf("unexpected review document:\n got %q\nwant %q", got, want)
	}
	if result.ReviewFile != cfg.Paths.ReviewFile || len(result.Artifacts) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(tools.scratch) != 2 || tools.scratch[0] == tools.scratch[1] {
		t.Fatalf("expected two distinct scratch dirs, got %v", tools.scratch)
	}
	assertScratchRemoved(t, tools.scratch)

	jobs, err := store.RecentJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentJobs returned error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 job rows, got %d", len(jobs))
	}
	status, err := store.RunStatus(context.Background(), result.RunID)
	if err != nil || status != history.StatusSucceeded {
		t.Fatalf("unexpected run status %q (%v)", status, err)
	}
}

func TestGenerateFailureKeepsReviewAndCleansScratch(t *testing.T) {
	cfg, tools := setup(t)
	tools.failTapes["post"] = true
	if err := os.WriteFile(cfg.Paths.ReviewFile, []byte("previous\n"), 0o644); err != nil {
		t.Fatalf("seed review: %v", err)
	}
	store := testsupport.MustOpenHistory(t, cfg)

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools), pipeline.WithLedger(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	result, err := p.Generate(context.Background(), []string{"get", "post"})

	var batchErr *batch.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if names := batchErr.FailedTapes(); len(names) != 1 || names[0] != "post" {
		t.Fatalf("unexpected failed tapes: %v", names)
	}
	var failed *recorder.RenderFailedError
	if !errors.As(err, &failed) || failed.ExitCode != 1 {
		t.Fatalf("expected RenderFailedError with exit 1, got %v", err)
	}
	if len(tools.scratch) != 2 {
		t.Fatalf("expected both jobs to run, got %d", len(tools.scratch))
	}
	assertScratchRemoved(t, tools.scratch)
	if result.ReviewFile != "" {
		t.Fatalf("expected no review file on failure, got %q", result.ReviewFile)
	}
	got, err := os.ReadFile(cfg.Paths.ReviewFile)
	if err != nil || string(got) != "previous\n" {
		t.Fatalf("expected previous review to survive, got %q (%v)", got, err)
	}

	jobs, err := store.RecentJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentJobs returned error: %v", err)
	}
	var sawFailure bool
	for _, job := range jobs {
		if job.Tape == "post" {
			sawFailure = job.Status == history.StatusFailed && job.ExitCode != nil && *job.ExitCode == 1
		}
	}
	if !sawFailure {
		t.Fatalf("expected failed post job in history, got %+v", jobs)
	}
}

func TestGenerateRunsPreBuildOnce(t *testing.T) {
	cfg, tools := setup(t, testsupport.WithBuildCommand("cargo", "build"))

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := p.Generate(context.Background(), nil); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if tools.builds != 1 {
		t.Fatalf("expected one pre-build, got %d", tools.builds)
	}
}

func TestGenerateStopsOnPreBuildFailure(t *testing.T) {
	cfg, tools := setup(t, testsupport.WithBuildCommand("cargo", "build"))
	tools.buildExit = 101

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = p.Generate(context.Background(), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if len(tools.scratch) != 0 {
		t.Fatalf("expected no renders after pre-build failure, got %d", len(tools.scratch))
	}
}

func TestGenerateAbortsOnMalformedTapeBeforeWork(t *testing.T) {
	cfg, tools := setup(t, testsupport.WithBuildCommand("cargo", "build"))
	testsupport.WriteRawTape(t, cfg, "broken", "Type \"no output here\"\n")

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = p.Generate(context.Background(), nil)
	var malformed *tape.MalformedScriptError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedScriptError, got %v", err)
	}
	if tools.builds != 0 || len(tools.scratch) != 0 {
		t.Fatalf("expected no work, got builds=%d renders=%d", tools.builds, len(tools.scratch))
	}
}

func TestGenerateFailsFastWhenLocked(t *testing.T) {
	cfg, tools := setup(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := p.Generate(context.Background(), nil); !errors.Is(err, pipeline.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, err := p.CleanScratch(context.Background(), 0); !errors.Is(err, pipeline.ErrLocked) {
		t.Fatalf("expected ErrLocked from CleanScratch, got %v", err)
	}
}

func TestCheckReportsStalePost(t *testing.T) {
	cfg, tools := setup(t)
	tools.head = "c2"
	tools.lastCommit = map[string]string{
		filepath.Join(cfg.Root, "static/get.gif"):  "c2",
		filepath.Join(cfg.Root, "static/post.gif"): "c1",
	}

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	report, err := p.Check(context.Background(), nil)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if len(report.Failing) != 1 || report.Failing[0] != "static/post.gif" {
		t.Fatalf("unexpected failing set: %v", report.Failing)
	}
	if len(tools.scratch) != 0 {
		t.Fatal("check must not render")
	}

	var stale *pipeline.StaleError
	if !errors.As(pipeline.StaleFromReport(report), &stale) || len(stale.Failing) != 1 {
		t.Fatalf("expected StaleError, got %v", pipeline.StaleFromReport(report))
	}
}

func TestCheckPassesWhenAllCurrent(t *testing.T) {
	cfg, tools := setup(t)
	tools.head = "c2"
	tools.lastCommit = map[string]string{
		filepath.Join(cfg.Root, "static/get.gif"):  "c2",
		filepath.Join(cfg.Root, "static/post.gif"): "c2",
	}

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	report, err := p.Check(context.Background(), []string{"post"})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !report.Passed() || pipeline.StaleFromReport(report) != nil {
		t.Fatalf("expected passing report, got %+v", report)
	}
}

func TestCheckResolvesOutputsAgainstProjectRoot(t *testing.T) {
	cfg, tools := setup(t)
	cfg.Paths.RepoDir = filepath.Join(cfg.Root, "docs")
	tools.head = "c2"
	tools.lastCommit = map[string]string{
		"static/post.gif": "c1",
		filepath.Join(cfg.Root, "static/post.gif"): "c2",
	}

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	report, err := p.Check(context.Background(), []string{"post"})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("expected history lookup under the project root, got failing %v", report.Failing)
	}
	if report.Failing != nil || report.Verdicts[0].Artifact.Output != "static/post.gif" {
		t.Fatalf("declared output should be reported unchanged: %+v", report.Verdicts[0])
	}
}

func TestCleanScratchRemovesLeftovers(t *testing.T) {
	cfg, tools := setup(t)
	leftover := filepath.Join(cfg.Paths.ScratchDir, recorder.ScratchPrefix+"killed")
	if err := os.MkdirAll(leftover, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	p, err := pipeline.New(cfg, pipeline.WithExecutor(tools))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	result, err := p.CleanScratch(context.Background(), 0)
	if err != nil {
		t.Fatalf("CleanScratch returned error: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != leftover {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
}
