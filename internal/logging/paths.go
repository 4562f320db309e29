package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogDirEnv overrides the log directory.
const LogDirEnv = "CODERAG_LOG_DIR"

// DefaultLogDir returns $CODERAG_LOG_DIR, or ~/.coderag/logs/.
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	if dir := os.Getenv(LogDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".coderag", "logs")
	}
	return filepath.Join(home, ".coderag", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// FindLogFile returns explicit if it exists, else the default log path if it exists.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found, run with --debug or start the server first (expected at %s)", path)
	}
	return path, nil
}
