package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gpufleet/fleet/internal/commands"
	"github.com/gpufleet/fleet/internal/protocol"
	"github.com/gpufleet/fleet/internal/registry"
	"github.com/gpufleet/fleet/internal/telemetry"
)

// DispatchHandler serves the agent-facing dispatch protocol: register,
// submit telemetry, fetch work, report output, and the unauthenticated
// status poll agents use to notice a stop request mid-execution.
type DispatchHandler struct {
	registryService  *registry.Service
	commandService   *commands.Service
	telemetryService *telemetry.Service
}

func NewDispatchHandler(registryService *registry.Service, commandService *commands.Service, telemetryService *telemetry.Service) *DispatchHandler {
	return &DispatchHandler{
		registryService:  registryService,
		commandService:   commandService,
		telemetryService: telemetryService,
	}
}

// Register mints or returns the credential for an agent ID.
// POST /api/v1/register
func (h *DispatchHandler) Register(c *gin.Context) {
	var req protocol.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}

	credential, err := h.registryService.Register(c.Request.Context(), req.AgentID)
	if err != nil {
		if errors.Is(err, registry.ErrEmptyAgentID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to register agent", "error", err, "agent_id", req.AgentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register agent"})
		return
	}

	c.JSON(http.StatusOK, protocol.RegisterResponse{Credential: credential})
}

// SubmitTelemetry records one telemetry submission from the
// authenticated agent.
// POST /api/v1/telemetry
func (h *DispatchHandler) SubmitTelemetry(c *gin.Context) {
	agentID := c.GetString("agent_id")

	var req protocol.TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.telemetryService.Submit(c.Request.Context(), agentID, req); err != nil {
		slog.Error("Failed to record telemetry", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record telemetry"})
		return
	}

	c.JSON(http.StatusOK, protocol.AckResponse{Status: "success"})
}

// FetchNextCommand claims the oldest pending command for the
// authenticated agent, or returns a null command when the queue is
// empty.
// GET /api/v1/commands/next
func (h *DispatchHandler) FetchNextCommand(c *gin.Context) {
	agentID := c.GetString("agent_id")

	cmd, err := h.commandService.FetchNext(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, commands.ErrNoPendingCommand) {
			c.JSON(http.StatusOK, protocol.NextCommandResponse{Command: nil})
			return
		}
		slog.Error("Failed to fetch next command", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch next command"})
		return
	}

	c.JSON(http.StatusOK, protocol.NextCommandResponse{
		CommandID: cmd.ID,
		Command:   &cmd.Text,
	})
}

// ReportOutput applies a status/output report from the authenticated
// agent to a command it owns.
// POST /api/v1/commands/report
func (h *DispatchHandler) ReportOutput(c *gin.Context) {
	agentID := c.GetString("agent_id")

	var req protocol.ReportOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.commandService.Report(c.Request.Context(), agentID, req.CommandID, req.Status, req.Output)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrCommandNotFound), errors.Is(err, commands.ErrNotOwner):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command"})
		case errors.Is(err, commands.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.Error("Failed to apply command report", "error", err,
				"agent_id", agentID, "command_id", req.CommandID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply report"})
		}
		return
	}

	c.JSON(http.StatusOK, protocol.AckResponse{Status: "success"})
}

// CommandStatus returns the current status and output of a command.
// Agents poll this mid-execution to detect a stop request; it is
// deliberately unauthenticated, a coordinator-side read.
// GET /api/v1/commands/:id/status
func (h *DispatchHandler) CommandStatus(c *gin.Context) {
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

	c.JSON(http.StatusOK, protocol.CommandStatusResponse{
		CommandID: cmd.ID,
		Status:    cmd.Status,
		Output:    cmd.Output,
		UpdatedAt: cmd.UpdatedAt,
	})
}
