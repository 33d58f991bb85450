package tests

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/agent"
	"github.com/gpufleet/fleet/internal/api/http/dto"
	"github.com/gpufleet/fleet/internal/protocol"
)

// TestStopCommand verifies the operator-initiated cancellation path: a
// long-running command is stopped mid-flight and ends as stopped, not
// failed.
func TestStopCommand(t *testing.T, baseURL string) {
	ctx := context.Background()
	client := agent.NewClient(baseURL, 10*time.Second)

	_, err := client.Register(ctx, "gpu-node-2")
	require.NoError(t, err)

	token := operatorToken(t, baseURL, "stop-operator")

	status, raw := doJSON(t, http.MethodPost, baseURL+"/api/v1/commands",
		dto.EnqueueCommandRequest{AgentIDs: []string{"gpu-node-2"}, Command: "sleep 60"}, token)
	require.Equal(t, http.StatusCreated, status, string(raw))

	var enqueued dto.EnqueueCommandResponse
	require.NoError(t, json.Unmarshal(raw, &enqueued))
	commandID := enqueued.Commands[0].ID

	t.Run("stop before claim is rejected", func(t *testing.T) {
		status, _ := doJSON(t, http.MethodPost, commandURL(baseURL, commandID)+"/stop", nil, token)
		assert.Equal(t, http.StatusConflict, status, "pending commands cannot be stopped")
	})

	pending, err := client.FetchNextCommand(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)

	executor := &agent.Executor{
		Reporter:           client,
		Logger:             slog.Default(),
		ReportInterval:     100 * time.Millisecond,
		StatusPollInterval: 100 * time.Millisecond,
		KillGrace:          500 * time.Millisecond,
	}

	done := make(chan string, 1)
	go func() {
		done <- executor.Run(ctx, pending.ID, pending.Text)
	}()

	// Give the executor a moment to start and mark the command running.
	require.Eventually(t, func() bool {
		polled, err := client.PollCommandStatus(ctx, commandID)
		return err == nil && polled == protocol.StatusRunning
	}, 10*time.Second, 100*time.Millisecond)

	status, raw = doJSON(t, http.MethodPost, commandURL(baseURL, commandID)+"/stop", nil, token)
	require.Equal(t, http.StatusOK, status, string(raw))

	select {
	case finalStatus := <-done:
		assert.Equal(t, protocol.StatusStopped, finalStatus)
	case <-time.After(15 * time.Second):
		t.Fatal("executor did not honor the stop request in time")
	}

	polled, err := client.PollCommandStatus(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusStopped, polled)

	statusCode, raw := doJSON(t, http.MethodGet, commandURL(baseURL, commandID), nil, token)
	require.Equal(t, http.StatusOK, statusCode)

	var resp dto.CommandResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Contains(t, resp.Output, "manually stopped")
}
