package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gpufleet/fleet/internal/api/http/dto"
	"github.com/gpufleet/fleet/internal/registry"
	"github.com/gpufleet/fleet/internal/telemetry"
)

// AgentsHandler serves the operator's fleet view.
type AgentsHandler struct {
	registryService  *registry.Service
	telemetryService *telemetry.Service
}

func NewAgentsHandler(registryService *registry.Service, telemetryService *telemetry.Service) *AgentsHandler {
	return &AgentsHandler{
		registryService:  registryService,
		telemetryService: telemetryService,
	}
}

// ListAgents returns all registered agents with their last contact time
// and latest telemetry snapshot.
// GET /api/v1/agents
func (h *AgentsHandler) ListAgents(c *gin.Context) {
	agentList, err := h.registryService.ListAgents(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}

	responses := make([]dto.AgentResponse, len(agentList))
	for i, a := range agentList {
		responses[i] = h.agentResponse(c, a)
	}

	c.JSON(http.StatusOK, dto.ListAgentsResponse{Agents: responses})
}

// GetAgent returns one agent.
// GET /api/v1/agents/:id
func (h *AgentsHandler) GetAgent(c *gin.Context) {
	agentID := c.Param("id")

	agent, err := h.registryService.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, registry.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		slog.Error("Failed to get agent", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get agent"})
		return
	}

	c.JSON(http.StatusOK, h.agentResponse(c, *agent))
}

// DeleteAgent removes an agent and all commands and telemetry it owns.
// DELETE /api/v1/agents/:id
func (h *AgentsHandler) DeleteAgent(c *gin.Context) {
	agentID := c.Param("id")

	if err := h.registryService.DeleteAgent(c.Request.Context(), agentID); err != nil {
		if errors.Is(err, registry.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		slog.Error("Failed to delete agent", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete agent"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "agent deleted"})
}

func (h *AgentsHandler) agentResponse(c *gin.Context, a registry.Agent) dto.AgentResponse {
	response := dto.AgentResponse{
		ID:           a.ID,
		RegisteredAt: a.RegisteredAt,
		LastContact:  a.LastContact,
	}

	if snapshot, err := h.telemetryService.Latest(c.Request.Context(), a.ID); err == nil {
		response.Telemetry = snapshot.Payload
		response.TelemetryAt = &snapshot.ReceivedAt
	}

	return response
}
