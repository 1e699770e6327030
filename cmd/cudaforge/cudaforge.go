package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cudaforge/cudaforge/internal"
	"github.com/cudaforge/cudaforge/internal/build"
	"github.com/cudaforge/cudaforge/internal/cli"
)

// The entry point for the cudaforge CLI.
//
// Initializes logging, displays startup information, and executes the root
// command. If any error occurs during execution, it exits with a non-zero
// code: 1 when one or more build tasks failed, 2 for configuration and
// environment errors.
func main() {
	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("cudaforge is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(exitCode(err))
	}
}

// Maps an execution error to a process exit code.
//
// Task failures and configuration errors must be distinguishable to callers:
// a CI pipeline may retry the former but never the latter.
func exitCode(err error) int {
	if errors.Is(err, build.ErrTasksFailed) {
		return 1
	}
	return 2
}

// Creates a logger seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via cli.Execute.
func logger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	})
	return slog.New(handler).WithGroup(internal.Name)
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
