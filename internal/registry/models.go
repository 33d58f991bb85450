package registry

import (
	"time"
)

// Agent is a registered fleet machine. The credential is minted once at
// first registration and never rotated; LastContact is refreshed on
// every successful authenticated protocol call and is the only
// liveness signal the coordinator has.
type Agent struct {
	ID           string
	Credential   string
	RegisteredAt time.Time
	LastContact  time.Time
}
