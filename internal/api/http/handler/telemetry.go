package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gpufleet/fleet/internal/api/http/dto"
	"github.com/gpufleet/fleet/internal/telemetry"
)

// TelemetryHandler serves time-window queries over the telemetry
// history.
type TelemetryHandler struct {
	telemetryService *telemetry.Service
}

func NewTelemetryHandler(telemetryService *telemetry.Service) *TelemetryHandler {
	return &TelemetryHandler{telemetryService: telemetryService}
}

// Range returns readings for one device of one agent inside a time
// window. Defaults to the last hour of device 0.
// GET /api/v1/agents/:id/telemetry?device=0&from=RFC3339&to=RFC3339
func (h *TelemetryHandler) Range(c *gin.Context) {
	agentID := c.Param("id")

	deviceIndex := 0
	if raw := c.Query("device"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device index"})
			return
		}
		deviceIndex = parsed
	}

	now := time.Now().UTC()
	from, to := now.Add(-time.Hour), now
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = parsed
	}

	readings, err := h.telemetryService.Range(c.Request.Context(), agentID, deviceIndex, from, to)
	if err != nil {
		slog.Error("Failed to query telemetry", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query telemetry"})
		return
	}

	responses := make([]dto.ReadingResponse, len(readings))
	for i, r := range readings {
		responses[i] = dto.ReadingResponse{
			DeviceIndex:       r.DeviceIndex,
			Timestamp:         r.Timestamp,
			Model:             r.Model,
			Temperature:       r.Temperature,
			Utilization:       r.Utilization,
			PowerDraw:         r.PowerDraw,
			MemoryTotalMB:     r.MemoryTotalMB,
			MemoryUsedMB:      r.MemoryUsedMB,
			MemoryFreeMB:      r.MemoryFreeMB,
			MemoryPercentUsed: r.MemoryPercentUsed,
		}
	}

	c.JSON(http.StatusOK, dto.TelemetryRangeResponse{
		AgentID:     agentID,
		DeviceIndex: deviceIndex,
		Readings:    responses,
	})
}
