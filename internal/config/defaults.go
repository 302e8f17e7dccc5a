package config

const (
	defaultTapeDir               = "tapes"
	defaultTapeExtension         = ".tape"
	defaultReviewFile            = "gifs.md"
	defaultStateDir              = ".tapedeck"
	defaultScratchSubdir         = "scratch"
	defaultHistoryFile           = "history.db"
	defaultRepoDir               = "."
	defaultRecorderBinary        = "vhs"
	defaultRecorderStateEnv      = "TAPEDECK_STATE_DIR"
	defaultRecorderTimeoutSecond = 600
	defaultGitBinary             = "git"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TapeDir:       defaultTapeDir,
			TapeExtension: defaultTapeExtension,
			ReviewFile:    defaultReviewFile,
			StateDir:      defaultStateDir,
			RepoDir:       defaultRepoDir,
		},
		Recorder: Recorder{
			Binary:         defaultRecorderBinary,
			StateEnv:       defaultRecorderStateEnv,
			TimeoutSeconds: defaultRecorderTimeoutSecond,
		},
		Git: Git{
			Binary: defaultGitBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
