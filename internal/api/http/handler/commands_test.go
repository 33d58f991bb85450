package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/api/http/dto"
	"github.com/gpufleet/fleet/internal/commands"
	"github.com/gpufleet/fleet/internal/protocol"
	"github.com/gpufleet/fleet/internal/registry"
)

type commandsFixture struct {
	router   *gin.Engine
	registry *registry.Service
	commands *commands.Service
}

func setupCommands(t *testing.T) *commandsFixture {
	t.Helper()

	f := &commandsFixture{
		registry: registry.NewService(registry.NewMemoryStore()),
		commands: commands.NewService(commands.NewMemoryStore()),
	}

	h := NewCommandsHandler(f.commands, f.registry)

	r := gin.New()
	r.POST("/api/v1/commands", h.Enqueue)
	r.GET("/api/v1/commands/:id", h.GetCommand)
	r.POST("/api/v1/commands/:id/stop", h.RequestStop)
	r.GET("/api/v1/agents/:id/commands", h.ListByAgent)
	f.router = r
	return f
}

func (f *commandsFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestEnqueueEndpoint(t *testing.T) {
	f := setupCommands(t)
	_, err := f.registry.Register(t.Context(), "gpu-node-1")
	require.NoError(t, err)
	_, err = f.registry.Register(t.Context(), "gpu-node-2")
	require.NoError(t, err)

	w := f.do("POST", "/api/v1/commands", dto.EnqueueCommandRequest{
		AgentIDs: []string{"gpu-node-1", "gpu-node-2"},
		Command:  "nvidia-smi",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.EnqueueCommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, protocol.StatusPending, resp.Commands[0].Status)
}

func TestEnqueueUnknownAgent(t *testing.T) {
	f := setupCommands(t)

	w := f.do("POST", "/api/v1/commands", dto.EnqueueCommandRequest{
		AgentIDs: []string{"ghost"},
		Command:  "echo hello",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnqueueMissingCommand(t *testing.T) {
	f := setupCommands(t)

	w := f.do("POST", "/api/v1/commands", map[string]any{"agent_ids": []string{"gpu-node-1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopEndpoint(t *testing.T) {
	f := setupCommands(t)
	_, err := f.registry.Register(t.Context(), "gpu-node-1")
	require.NoError(t, err)

	enqueued, err := f.commands.Enqueue(t.Context(), []string{"gpu-node-1"}, "sleep 600")
	require.NoError(t, err)

	// Not running yet.
	w := f.do("POST", fmt.Sprintf("/api/v1/commands/%d/stop", enqueued[0].ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err = f.commands.FetchNext(t.Context(), "gpu-node-1")
	require.NoError(t, err)

	w = f.do("POST", fmt.Sprintf("/api/v1/commands/%d/stop", enqueued[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	cmd, err := f.commands.Get(t.Context(), enqueued[0].ID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusStopping, cmd.Status)
}

func TestStopUnknownCommand(t *testing.T) {
	f := setupCommands(t)

	w := f.do("POST", "/api/v1/commands/424242/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListByAgentEndpoint(t *testing.T) {
	f := setupCommands(t)
	_, err := f.registry.Register(t.Context(), "gpu-node-1")
	require.NoError(t, err)

	for _, text := range []string{"echo 1", "echo 2"} {
		_, err := f.commands.Enqueue(t.Context(), []string{"gpu-node-1"}, text)
		require.NoError(t, err)
	}

	w := f.do("GET", "/api/v1/agents/gpu-node-1/commands", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListCommandsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, "echo 2", resp.Commands[0].Command)
}
