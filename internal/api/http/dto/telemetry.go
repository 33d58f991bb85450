package dto

import "time"

type ReadingResponse struct {
	DeviceIndex       int       `json:"device_index"`
	Timestamp         time.Time `json:"timestamp"`
	Model             string    `json:"model"`
	Temperature       int       `json:"temp"`
	Utilization       int       `json:"util"`
	PowerDraw         *float64  `json:"power_usage,omitempty"`
	MemoryTotalMB     float64   `json:"memory_total"`
	MemoryUsedMB      float64   `json:"memory_used"`
	MemoryFreeMB      float64   `json:"memory_free"`
	MemoryPercentUsed float64   `json:"memory_percent_used"`
}

type TelemetryRangeResponse struct {
	AgentID     string            `json:"agent_id"`
	DeviceIndex int               `json:"device_index"`
	Readings    []ReadingResponse `json:"readings"`
}
