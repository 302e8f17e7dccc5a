package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tapedeck/internal/config"
	"tapedeck/internal/testsupport"
)

// fakeRecorder stands in for vhs. It reads the Output directive from the tape,
// insists on a private state directory, and fails for the tape named in
// TAPEDECK_FAIL_TAPE.
const fakeRecorder = `set -e
out=$(sed -n 's/^Output "\(.*\)"$/\1/p' "$1")
[ -d "$TAPEDECK_STATE_DIR" ] || { echo "no state dir" >&2; exit 3; }
name=$(basename "$1" .tape)
if [ -n "$TAPEDECK_FAIL_TAPE" ] && [ "$name" = "$TAPEDECK_FAIL_TAPE" ]; then
  echo "recording $name failed" >&2
  exit 1
fi
mkdir -p "$(dirname "$out")"
printf 'GIF89a %s' "$name" > "$out"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithRecorderScript(fakeRecorder))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("NO_COLOR", "1")

	configPath := filepath.Join(base, config.ProjectFileName)
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
tape_dir = %q
review_file = %q
state_dir = %q
scratch_dir = %q
history_db = %q
repo_dir = %q

[recorder]
binary = %q
`,
		cfg.Paths.TapeDir,
		cfg.Paths.ReviewFile,
		cfg.Paths.StateDir,
		cfg.Paths.ScratchDir,
		cfg.Paths.HistoryDB,
		cfg.Paths.RepoDir,
		cfg.Recorder.Binary,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
