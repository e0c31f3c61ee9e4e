package tui

import (
	"os"
	"path/filepath"
)

// GetLogFilePath returns the path to the log file.
// GITGATE_LOG_FILE wins, then the configured path, then
// ~/.gitgate/logs/gitgate.log.
func GetLogFilePath(configured string) string {
	if customPath := os.Getenv("GITGATE_LOG_FILE"); customPath != "" {
		return customPath
	}
	if configured != "" {
		return configured
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "gitgate.log"
	}
	return filepath.Join(homeDir, ".gitgate", "logs", "gitgate.log")
}
