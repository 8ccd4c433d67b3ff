package shared

// Global flag values - set by root command
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by the root command to register persistent flags.
func RegisterFlagPointers() (verbose, quiet, jsonOut *bool) {
	return &verboseFlag, &quietFlag, &jsonFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool { return verboseFlag }

// GetQuiet returns the quiet flag value
func GetQuiet() bool { return quietFlag }

// GetJSON returns the JSON output flag value
func GetJSON() bool { return jsonFlag }

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetJSONForTest sets the JSON output flag for testing purposes
func SetJSONForTest(v bool) {
	jsonFlag = v
}

// SetVerboseForTest sets the verbose flag for testing purposes
func SetVerboseForTest(v bool) {
	verboseFlag = v
}
