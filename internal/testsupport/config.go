package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tapedeck/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp project directory with
// an existing, empty tape directory. It applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Root = base
	cfgVal.Paths.TapeDir = filepath.Join(base, "tapes")
	cfgVal.Paths.ReviewFile = filepath.Join(base, "gifs.md")
	cfgVal.Paths.StateDir = filepath.Join(base, ".tapedeck")
	cfgVal.Paths.ScratchDir = filepath.Join(base, ".tapedeck", "scratch")
	cfgVal.Paths.HistoryDB = filepath.Join(base, ".tapedeck", "history.db")
	cfgVal.Paths.RepoDir = base

	if err := os.MkdirAll(cfgVal.Paths.TapeDir, 0o755); err != nil {
		t.Fatalf("mkdir tape dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxParallel caps render concurrency on the test config.
func WithMaxParallel(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generate.MaxParallel = n
	}
}

// WithBuildCommand sets the pre-build command on the test config.
func WithBuildCommand(args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Build.Command = args
	}
}

// WithRecorderScript writes a shell script used as the recorder binary. The
// script receives the tape path as $1 and the job scratch directory through
// the configured state variable.
func WithRecorderScript(body string) ConfigOption {
	return func(b *configBuilder) {
		target := filepath.Join(b.baseDir, "bin", "recorder")
		writeExecutable(b.t, target, "#!/bin/sh\n"+body+"\n")
		b.cfg.Recorder.Binary = target
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default recorder and git
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"vhs", "git"}
		}
		binDir := filepath.Join(b.baseDir, "stubs")
		for _, name := range names {
			writeExecutable(b.t, filepath.Join(binDir, name), "#!/bin/sh\nexit 0\n")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the project directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Root
}

func writeExecutable(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}
