package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/protocol"
)

func sampleRequest(ts time.Time, temp int) protocol.TelemetryRequest {
	return protocol.TelemetryRequest{
		Timestamp: ts,
		GPUs: []protocol.GPUReading{
			{
				Index:       0,
				Model:       "NVIDIA A100",
				Temperature: temp,
				Utilization: 10,
				Memory:      protocol.Memory{TotalMB: 8000, UsedMB: 1000, FreeMB: 7000, PercentUsed: 12.5},
			},
		},
	}
}

func TestSubmitAndRange(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(base, 65)))
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(base.Add(5*time.Second), 70)))

	readings, err := svc.Range(ctx, "gpu-node-1", 0, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 65, readings[0].Temperature)
	assert.Equal(t, 70, readings[1].Temperature)
}

func TestSubmitOutOfOrderTimestamps(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(base.Add(10*time.Second), 70)))
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(base, 65)))

	readings, err := svc.Range(ctx, "gpu-node-1", 0, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	// Indexed by timestamp, so the series comes back in time order.
	assert.Equal(t, 65, readings[0].Temperature)
	assert.Equal(t, 70, readings[1].Temperature)
}

func TestSubmitDuplicateTimestampIsNoop(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(ts, 65)))
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(ts, 99)))

	readings, err := svc.Range(ctx, "gpu-node-1", 0, ts, ts)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 65, readings[0].Temperature)
}

func TestSubmitIndexlessFallsBackToPosition(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	req := protocol.TelemetryRequest{
		Timestamp: ts,
		GPUs: []protocol.GPUReading{
			{Temperature: 60, Memory: protocol.Memory{TotalMB: 8000}},
			{Temperature: 75, Memory: protocol.Memory{TotalMB: 8000}},
		},
	}
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", req))

	readings, err := svc.Range(ctx, "gpu-node-1", 1, ts, ts)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 75, readings[0].Temperature)
}

func TestSubmitKeepsDeviceZeroOutOfOrder(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	req := protocol.TelemetryRequest{
		Timestamp: ts,
		GPUs: []protocol.GPUReading{
			{Index: 1, Temperature: 75, Memory: protocol.Memory{TotalMB: 8000}},
			{Index: 0, Temperature: 60, Memory: protocol.Memory{TotalMB: 8000}},
		},
	}
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", req))

	// Device 0 listed second must stay device 0, not be re-keyed to
	// its list position.
	readings, err := svc.Range(ctx, "gpu-node-1", 0, ts, ts)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 60, readings[0].Temperature)

	readings, err = svc.Range(ctx, "gpu-node-1", 1, ts, ts)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 75, readings[0].Temperature)
}

func TestLatestSnapshot(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Latest(ctx, "gpu-node-1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(base, 65)))
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", sampleRequest(base.Add(5*time.Second), 70)))

	snapshot, err := svc.Latest(ctx, "gpu-node-1")
	require.NoError(t, err)

	var payload protocol.TelemetryRequest
	require.NoError(t, json.Unmarshal(snapshot.Payload, &payload))
	require.Len(t, payload.GPUs, 1)
	assert.Equal(t, 70, payload.GPUs[0].Temperature)
}

func TestRangeScopedToDevice(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	req := protocol.TelemetryRequest{
		Timestamp: ts,
		GPUs: []protocol.GPUReading{
			{Index: 0, Temperature: 60, Memory: protocol.Memory{TotalMB: 8000}},
			{Index: 1, Temperature: 75, Memory: protocol.Memory{TotalMB: 8000}},
		},
	}
	require.NoError(t, svc.Submit(ctx, "gpu-node-1", req))

	readings, err := svc.Range(ctx, "gpu-node-1", 1, ts, ts)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 75, readings[0].Temperature)
}
