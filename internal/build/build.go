package build

// Build information, set via ldflags.
var (
	Version = "dev"
	Time    = "unknown"
)
