package cli

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
