package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"tapedeck/internal/config"
	"tapedeck/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if res, ok := statDirectory(name, path); !ok {
		return res
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	if res, ok := statDirectory(name, path); !ok {
		return res
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

func statDirectory(name, path string) (Result, bool) {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}, false
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}, false
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}, false
	}
	return Result{}, true
}

// CheckRenderDeps evaluates the binaries a generate run needs: the recorder
// and, when configured, the pre-build command.
func CheckRenderDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(renderRequirements(cfg))
}

// CheckSystemDeps evaluates every external binary for the given config.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := append(renderRequirements(cfg), deps.Requirement{
		Name:        "Git",
		Command:     cfg.Git.Binary,
		Description: "Required for staleness checks",
	})
	return deps.CheckBinaries(requirements)
}

func renderRequirements(cfg *config.Config) []deps.Requirement {
	requirements := []deps.Requirement{
		{
			Name:        "Recorder",
			Command:     cfg.Recorder.Binary,
			Description: "Required to render tapes",
		},
	}
	if len(cfg.Build.Command) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "Build",
			Command:     cfg.Build.Command[0],
			Description: "Pre-build command run before rendering",
		})
	}
	return requirements
}
