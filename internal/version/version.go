package version

import "fmt"

// Version and Commit are overridden at build time via -ldflags.
var (
	Version = "0.1.0"
	Commit  = "dev"
)

func Full() string {
	return fmt.Sprintf("edgekv %s (%s)", Version, Commit)
}
