package services_test

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"tapedeck/internal/services"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandExecutorCapturesOutputAndExitCode(t *testing.T) {
	requireShell(t)

	var lines []string
	result, err := services.CommandExecutor{}.Run(context.Background(), services.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err 1>&2; exit 3"},
	}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("unexpected exit code: got %d want 3", result.ExitCode)
	}
	output := string(result.Output)
	if !strings.Contains(output, "out") || !strings.Contains(output, "err") {
		t.Fatalf("expected both streams in output, got %q", output)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 forwarded lines, got %v", lines)
	}
}

func TestCommandExecutorUsesProvidedEnvironment(t *testing.T) {
	requireShell(t)

	result, err := services.CommandExecutor{}.Run(context.Background(), services.Command{
		Binary: "sh",
		Args:   []string{"-c", "printf %s \"$TAPEDECK_PROBE\""},
		Env:    []string{"TAPEDECK_PROBE=scoped", "PATH=/usr/bin:/bin"},
	}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := strings.TrimSpace(string(result.Output)); got != "scoped" {
		t.Fatalf("unexpected env value: got %q want %q", got, "scoped")
	}
}

func TestCommandExecutorReportsCancellation(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := services.CommandExecutor{}.Run(ctx, services.Command{
		Binary: "sh",
		Args:   []string{"-c", "sleep 5"},
	}, nil)
	if err == nil {
		t.Fatal("expected error when context expires")
	}
	if services.FailureKind(err) != services.FailureTimeout {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestCommandExecutorCancellationKillsProcessGroup(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := services.CommandExecutor{}.Run(ctx, services.Command{
		Binary: "sh",
		Args:   []string{"-c", "sleep 30 & sleep 30"},
	}, nil)
	if err == nil {
		t.Fatal("expected error when context expires")
	}
	// The background sleep holds the output pipe; only a group kill releases
	// it before the wait delay runs out.
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("run returned after %s, background child survived", elapsed)
	}
}

func TestCommandExecutorMissingBinary(t *testing.T) {
	_, err := services.CommandExecutor{}.Run(context.Background(), services.Command{
		Binary: "tapedeck-definitely-missing-binary",
	}, nil)
	if err == nil {
		t.Fatal("expected start error for missing binary")
	}
}
