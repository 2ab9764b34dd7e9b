package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/eventhub/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging configures logging to stdout and, when logFile is set, to that file too.
// The returned closer releases the log file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	if err := logger.Init(logger.WithWriter(w)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closer, nil
}

// ShowHelp prints usage information for the seeding tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Eventhub Seed Tool
==================

Generates first-party event drafts, submits them concurrently to a running
eventhub service and verifies they appear in the aggregated collection.

Usage:
  go run ./cmd/seed-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -events int
        Number of drafts to generate and submit (default 200)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Wait between submission and verification (default 1s)
  -output string
        Output file for submitted records (default: none)
  -log string
        Log file for run output (default: stdout only)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed with default settings
  go run ./cmd/seed-events

  # Seed a larger batch against another port
  go run ./cmd/seed-events -events 5000 -workers 16 -url http://localhost:8080
`)
}
