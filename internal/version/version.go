// ABOUTME: Version constants for the bridge client
// ABOUTME: Reported in CLI output and publish metadata

package version

const (
	// Version is the client release version.
	Version = "0.1.0"

	// Product is the client product name.
	Product = "natsgate-go"
)
