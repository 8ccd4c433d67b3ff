package shared

import (
	"os"

	"golang.org/x/term"
)

// IsNonInteractive detects if the current execution context is
// non-interactive. Checked in priority order:
//
//  1. --no-interactive flag (checked by caller before calling this)
//  2. ENSEMBLE_NON_INTERACTIVE=true environment variable
//  3. CI environment detection (CI, GITHUB_ACTIONS, GITLAB_CI, CIRCLECI, JENKINS_HOME)
//  4. stdin is not a TTY
func IsNonInteractive() bool {
	if os.Getenv("ENSEMBLE_NON_INTERACTIVE") == "true" {
		return true
	}
	if isCIEnvironment() {
		return true
	}
	return !isTerminal()
}

func isCIEnvironment() bool {
	ciVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"JENKINS_HOME",
	}

	for _, envVar := range ciVars {
		value := os.Getenv(envVar)
		if value == "true" || value == "1" {
			return true
		}
		// JENKINS_HOME is set to a path, just check that it exists
		if envVar == "JENKINS_HOME" && value != "" {
			return true
		}
	}
	return false
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
