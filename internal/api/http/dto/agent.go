package dto

import (
	"encoding/json"
	"time"
)

type AgentResponse struct {
	ID           string          `json:"id"`
	RegisteredAt time.Time       `json:"registered_at"`
	LastContact  time.Time       `json:"last_contact"`
	Telemetry    json.RawMessage `json:"telemetry,omitempty"`
	TelemetryAt  *time.Time      `json:"telemetry_at,omitempty"`
}

type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
