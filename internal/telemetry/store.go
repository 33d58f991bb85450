package telemetry

import (
	"context"
	"errors"
	"time"
)

var ErrNoSnapshot = errors.New("no telemetry snapshot for agent")

// Store is the persistence contract for telemetry history and the
// per-agent latest snapshot.
type Store interface {
	InsertReadings(ctx context.Context, readings []Reading) error
	SetLatest(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, agentID string) (*Snapshot, error)
	Range(ctx context.Context, agentID string, deviceIndex int, from, to time.Time) ([]Reading, error)
}
