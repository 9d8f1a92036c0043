// Package common holds helpers shared by the command line front ends.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogDir returns the directory daily log files are written to.
func LogDir(appName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "."+appName, "logs"), nil
}

// OpenLogFile opens today's log file for appending, creating the log
// directory if needed. Full-screen commands send their logs here so they
// do not draw over the terminal UI.
func OpenLogFile(appName string, now time.Time) (*os.File, error) {
	logsDir, err := LogDir(appName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFileName := fmt.Sprintf("%s-%s.log", appName, now.Format("2006-01-02"))
	logFile, err := os.OpenFile(filepath.Join(logsDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logFile, nil
}
