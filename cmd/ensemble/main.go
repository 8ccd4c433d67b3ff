package main

import (
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/ensemble-run/ensemble/internal/cli"
	"github.com/ensemble-run/ensemble/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Load .env if present; API keys for providers commonly live there
	_ = godotenv.Load()

	slog.SetDefault(log.New(log.FromEnv()))

	cli.SetVersion(version, commit, buildDate)
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
