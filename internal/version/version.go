package version

import "fmt"

// Version is the semantic version of reflens.
// Overridable at build time:
// go build -ldflags "-X github.com/standardbeagle/reflens/internal/version.Version=1.2.3"
var Version = "0.3.0"

// Commit is the git commit the binary was built from (set at build time).
var Commit = "dev"

// FullInfo returns the version with build metadata for diagnostics.
func FullInfo() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
