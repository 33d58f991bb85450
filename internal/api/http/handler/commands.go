package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gpufleet/fleet/internal/api/http/dto"
	"github.com/gpufleet/fleet/internal/commands"
	"github.com/gpufleet/fleet/internal/registry"
)

// CommandsHandler serves the operator's command queue: enqueueing work,
// requesting cancellation, and browsing history.
type CommandsHandler struct {
	commandService  *commands.Service
	registryService *registry.Service
}

func NewCommandsHandler(commandService *commands.Service, registryService *registry.Service) *CommandsHandler {
	return &CommandsHandler{
		commandService:  commandService,
		registryService: registryService,
	}
}

// Enqueue creates one pending command per listed agent.
// POST /api/v1/commands
func (h *CommandsHandler) Enqueue(c *gin.Context) {
	var req dto.EnqueueCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, agentID := range req.AgentIDs {
		if _, err := h.registryService.GetAgent(c.Request.Context(), agentID); err != nil {
			if errors.Is(err, registry.ErrAgentNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "agent not found: " + agentID})
				return
			}
			slog.Error("Failed to look up agent", "error", err, "agent_id", agentID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue command"})
			return
		}
	}

	enqueued, err := h.commandService.Enqueue(c.Request.Context(), req.AgentIDs, req.Command)
	if err != nil {
		slog.Error("Failed to enqueue command", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue command"})
		return
	}

	responses := make([]dto.CommandResponse, len(enqueued))
	for i, cmd := range enqueued {
		responses[i] = commandResponse(cmd)
	}
	c.JSON(http.StatusCreated, dto.EnqueueCommandResponse{Commands: responses})
}

// GetCommand returns one command with its full output.
// GET /api/v1/commands/:id
func (h *CommandsHandler) GetCommand(c *gin.Context) {
	commandID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command ID"})
		return
	}

	cmd, err := h.commandService.Get(c.Request.Context(), commandID)
	if err != nil {
		if errors.Is(err, commands.ErrCommandNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		slog.Error("Failed to get command", "error", err, "command_id", commandID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get command"})
		return
	}

	c.JSON(http.StatusOK, commandResponse(*cmd))
}

// RequestStop asks the owning agent to cancel a running command.
// POST /api/v1/commands/:id/stop
func (h *CommandsHandler) RequestStop(c *gin.Context) {
	commandID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command ID"})
		return
	}

	if err := h.commandService.RequestStop(c.Request.Context(), commandID); err != nil {
		switch {
		case errors.Is(err, commands.ErrCommandNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		case errors.Is(err, commands.ErrNotRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "command is not running"})
		default:
			slog.Error("Failed to request stop", "error", err, "command_id", commandID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request stop"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "stop requested"})
}

// ListByAgent returns the most recent commands for one agent.
// GET /api/v1/agents/:id/commands
func (h *CommandsHandler) ListByAgent(c *gin.Context) {
	agentID := c.Param("id")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	list, err := h.commandService.ListByAgent(c.Request.Context(), agentID, limit)
	if err != nil {
		slog.Error("Failed to list commands", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list commands"})
		return
	}

	responses := make([]dto.CommandResponse, len(list))
	for i, cmd := range list {
		responses[i] = commandResponse(cmd)
	}
	c.JSON(http.StatusOK, dto.ListCommandsResponse{Commands: responses})
}

func commandResponse(cmd commands.Command) dto.CommandResponse {
	return dto.CommandResponse{
		ID:        cmd.ID,
		AgentID:   cmd.AgentID,
		Command:   cmd.Text,
		Status:    cmd.Status,
		Output:    cmd.Output,
		CreatedAt: cmd.CreatedAt,
		UpdatedAt: cmd.UpdatedAt,
	}
}
