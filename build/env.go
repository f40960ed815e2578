package build

var (
	// obnamServerLog is the environment variable that selects the chunk
	// server's log verbosity: error, warn, info, or debug.
	obnamServerLog = "OBNAM_SERVER_LOG"

	// obnamClientLog is the environment variable that selects the backup
	// client's log verbosity.
	obnamClientLog = "OBNAM_CLIENT_LOG"

	// obnamConfigDir is the environment variable that overrides the
	// directory obnam looks in for its client configuration and key file.
	obnamConfigDir = "OBNAM_CONFIG_DIR"
)
