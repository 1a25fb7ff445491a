// Package version provides the pipeline version string.
// The version can be set at build time using ldflags:
//
//	go build -ldflags "-X github.com/ramonehamilton/hs-replay-pipeline/internal/version.Version=v1.2.3"
package version

// Version is the pipeline version. It defaults to "dev" and can be
// overridden at build time using ldflags.
var Version = "dev"

// GetVersion returns the current pipeline version.
func GetVersion() string {
	return Version
}

// UserAgentSuffix returns the product token appended to outgoing User-Agent headers.
func UserAgentSuffix() string {
	return "hs-replay-pipeline/" + Version
}
