package commands

import (
	"time"

	"github.com/gpufleet/fleet/internal/protocol"
)

// Command is one unit of shell work enqueued for a single agent. The
// coordinator is the sole authority on Status; the owning agent drives
// it through the dispatch protocol and never persists any state of its
// own.
type Command struct {
	ID        int64
	AgentID   string
	Text      string
	Status    string
	Output    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the command has reached a final state.
func (c *Command) Terminal() bool {
	return protocol.TerminalStatus(c.Status)
}
