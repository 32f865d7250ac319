package registry

// Usage restricts which programs should accept a given backend.
//
// Backends are linked at build time: a backend registers itself via init()
// and is enabled in a binary by importing its package (usually blank).
type Usage uint8

const (
	// UsageCLI marks backends available to one-shot programs (xdao-pora).
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends a long-running daemon may serve (xdao-proofd).
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
