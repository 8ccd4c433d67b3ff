/*
Package cli provides the root command and shared configuration for the
ensemble CLI.

This package creates the main Cobra command tree and handles global concerns
like version information, persistent flags, and error handling. Individual
commands are implemented in the internal/commands subpackages.

# Command Tree

The CLI is organized as:

	ensemble
	├── run           Execute a workflow
	├── validate      Validate a workflow config
	├── runs          List recent runs
	│   └── show      Show one run with per-node results
	├── examples      List built-in example workflows
	│   ├── show      Print an example config
	│   └── copy      Write an example config to a file
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format

# Exit Codes

Errors are handled centrally to ensure proper exit codes:

  - Exit 0: Success
  - Exit 1: Execution failure (node failed, validation violations reported)
  - Exit 2: Invalid or unreadable workflow config
  - Exit 3: Missing required input
*/
package cli
