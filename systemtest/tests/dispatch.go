package tests

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/agent"
	"github.com/gpufleet/fleet/internal/api/http/dto"
	"github.com/gpufleet/fleet/internal/protocol"
)

// TestAgentDispatch walks the whole agent lifecycle: registration,
// telemetry, claiming an operator-enqueued command, executing it and
// reporting the result back.
func TestAgentDispatch(t *testing.T, baseURL string) {
	ctx := context.Background()
	client := agent.NewClient(baseURL, 10*time.Second)

	credential, err := client.Register(ctx, "gpu-node-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(credential, "ak_"), "credential %q should carry the ak_ prefix", credential)

	t.Run("registration is idempotent", func(t *testing.T) {
		again, err := agent.NewClient(baseURL, 10*time.Second).Register(ctx, "gpu-node-1")
		require.NoError(t, err)
		assert.Equal(t, credential, again)
	})

	power := 250.5
	err = client.SubmitTelemetry(ctx, protocol.TelemetryRequest{
		Timestamp: time.Now().UTC(),
		GPUs: []protocol.GPUReading{{
			Index:       0,
			Model:       "NVIDIA H100 80GB HBM3",
			Temperature: 48,
			Utilization: 91,
			PowerDraw:   &power,
			Memory:      protocol.Memory{TotalMB: 81559, UsedMB: 70000, FreeMB: 11559, PercentUsed: 85.8},
		}},
		Host: &protocol.HostReading{CPUPercent: 12.5, MemoryUsedMB: 32000, MemoryTotalMB: 128000},
	})
	require.NoError(t, err)

	pending, err := client.FetchNextCommand(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending, "queue should start empty")

	token := operatorToken(t, baseURL, "dispatch-operator")

	t.Run("agent visible to operator with telemetry", func(t *testing.T) {
		status, raw := doJSON(t, http.MethodGet, baseURL+"/api/v1/agents/gpu-node-1", nil, token)
		require.Equal(t, http.StatusOK, status, string(raw))

		var resp dto.AgentResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		assert.Equal(t, "gpu-node-1", resp.ID)
		assert.NotEmpty(t, resp.Telemetry, "latest telemetry snapshot should be attached")
	})

	status, raw := doJSON(t, http.MethodPost, baseURL+"/api/v1/commands",
		dto.EnqueueCommandRequest{AgentIDs: []string{"gpu-node-1"}, Command: "echo hello"}, token)
	require.Equal(t, http.StatusCreated, status, string(raw))

	var enqueued dto.EnqueueCommandResponse
	require.NoError(t, json.Unmarshal(raw, &enqueued))
	require.Len(t, enqueued.Commands, 1)
	commandID := enqueued.Commands[0].ID
	assert.Equal(t, protocol.StatusPending, enqueued.Commands[0].Status)

	pending, err = client.FetchNextCommand(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, commandID, pending.ID)
	assert.Equal(t, "echo hello", pending.Text)

	executor := &agent.Executor{
		Reporter:           client,
		Logger:             slog.Default(),
		ReportInterval:     100 * time.Millisecond,
		StatusPollInterval: 100 * time.Millisecond,
	}
	finalStatus := executor.Run(ctx, pending.ID, pending.Text)
	assert.Equal(t, protocol.StatusCompleted, finalStatus)

	polled, err := client.PollCommandStatus(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusCompleted, polled)

	t.Run("operator sees the final output", func(t *testing.T) {
		status, raw := doJSON(t, http.MethodGet, commandURL(baseURL, commandID), nil, token)
		require.Equal(t, http.StatusOK, status, string(raw))

		var resp dto.CommandResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		assert.Equal(t, protocol.StatusCompleted, resp.Status)
		assert.Equal(t, "hello\n", resp.Output)
	})

	t.Run("queue drained after completion", func(t *testing.T) {
		pending, err := client.FetchNextCommand(ctx)
		require.NoError(t, err)
		assert.Nil(t, pending)
	})
}
