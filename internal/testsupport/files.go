package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tapedeck/internal/config"
	"tapedeck/internal/history"
)

// WriteTape creates a tape named name in the config's tape directory that
// declares output. Extra lines are appended verbatim.
func WriteTape(t testing.TB, cfg *config.Config, name, output string, extra ...string) string {
	t.Helper()

	body := "Set Shell bash\nOutput \"" + output + "\"\n"
	for _, line := range extra {
		body += line + "\n"
	}
	return WriteRawTape(t, cfg, name, body)
}

// WriteRawTape creates a tape with the exact body given.
func WriteRawTape(t testing.TB, cfg *config.Config, name, body string) string {
	t.Helper()

	path := filepath.Join(cfg.Paths.TapeDir, name+cfg.Paths.TapeExtension)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tape %s: %v", path, err)
	}
	return path
}

// MustOpenHistory opens the config's history ledger and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
