// Package mode defines the SDK's three operating modes, selected via
// the TUSK_DRIFT_MODE environment variable. It is its own tiny package
// so that both the export pipeline and the top-level driftsdk package
// can depend on it without creating an import cycle between them.
package mode

// Mode is the SDK's operating mode.
type Mode string

const (
	Record   Mode = "RECORD"
	Replay   Mode = "REPLAY"
	Disabled Mode = "DISABLED"
)

// Parse maps the TUSK_DRIFT_MODE env var onto a Mode, defaulting to
// Disabled for anything unrecognized so an unconfigured SDK is inert
// rather than silently recording or replaying.
func Parse(s string) Mode {
	switch s {
	case string(Record):
		return Record
	case string(Replay):
		return Replay
	default:
		return Disabled
	}
}
