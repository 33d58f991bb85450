package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gpufleet/fleet/internal/protocol"
)

// Service records telemetry submissions and serves time-window queries.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Submit records one telemetry submission from an agent: every GPU
// reading goes into the history, and the whole payload replaces the
// agent's latest snapshot.
func (s *Service) Submit(ctx context.Context, agentID string, req protocol.TelemetryRequest) error {
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	// A submission where every reading says index 0 carries no device
	// indices at all; fall back to list position. A genuine device 0 in
	// a mixed submission keeps its index.
	indexless := len(req.GPUs) > 1
	for _, gpu := range req.GPUs {
		if gpu.Index != 0 {
			indexless = false
			break
		}
	}

	readings := make([]Reading, 0, len(req.GPUs))
	for i, gpu := range req.GPUs {
		index := gpu.Index
		if indexless {
			index = i
		}
		readings = append(readings, Reading{
			AgentID:           agentID,
			DeviceIndex:       index,
			Timestamp:         timestamp,
			Model:             gpu.Model,
			Temperature:       gpu.Temperature,
			Utilization:       gpu.Utilization,
			PowerDraw:         gpu.PowerDraw,
			MemoryTotalMB:     gpu.Memory.TotalMB,
			MemoryUsedMB:      gpu.Memory.UsedMB,
			MemoryFreeMB:      gpu.Memory.FreeMB,
			MemoryPercentUsed: gpu.Memory.PercentUsed,
		})
	}

	if len(readings) > 0 {
		if err := s.store.InsertReadings(ctx, readings); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal telemetry payload: %w", err)
	}
	if err := s.store.SetLatest(ctx, Snapshot{
		AgentID:    agentID,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	slog.Debug("Telemetry recorded", "agent_id", agentID, "gpus", len(readings))
	return nil
}

// Latest returns the most recent submission from an agent.
func (s *Service) Latest(ctx context.Context, agentID string) (*Snapshot, error) {
	return s.store.GetLatest(ctx, agentID)
}

// Range returns the readings for one device of one agent inside a time
// window, oldest first.
func (s *Service) Range(ctx context.Context, agentID string, deviceIndex int, from, to time.Time) ([]Reading, error) {
	return s.store.Range(ctx, agentID, deviceIndex, from, to)
}
