package telemetry

import (
	"time"
)

// Reading is one GPU's state at one instant, as reported by an agent.
// Readings are immutable once stored and are keyed by
// (agent_id, device_index, timestamp), so out-of-order arrival just
// lands each reading at its own place in the series.
type Reading struct {
	AgentID           string
	DeviceIndex       int
	Timestamp         time.Time
	Model             string
	Temperature       int
	Utilization       int
	PowerDraw         *float64
	MemoryTotalMB     float64
	MemoryUsedMB      float64
	MemoryFreeMB      float64
	MemoryPercentUsed float64
}

// Snapshot is the most recent full submission from an agent, kept
// verbatim for the operator's fleet view.
type Snapshot struct {
	AgentID    string
	Payload    []byte
	ReceivedAt time.Time
}
