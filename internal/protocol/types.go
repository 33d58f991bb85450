// Package protocol defines the wire messages exchanged between the
// coordinator and fleet agents. Both sides import these types so the
// dispatch contract lives in one place.
package protocol

import "time"

// Command status values. A command starts out pending, becomes running
// when an agent claims it, and ends in exactly one of the terminal
// states. Stopping is set by an operator while the command runs and is
// honored by the agent on its next status poll.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusStopping  = "stopping"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// TerminalStatus reports whether a status value can never change again.
func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

type RegisterRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

type RegisterResponse struct {
	Credential string `json:"credential"`
}

// GPUReading is one device's snapshot inside a telemetry submission.
type GPUReading struct {
	Index       int      `json:"index"`
	Model       string   `json:"model"`
	Temperature int      `json:"temp"`
	Utilization int      `json:"util"`
	PowerDraw   *float64 `json:"power_usage,omitempty"`
	Memory      Memory   `json:"memory"`
}

type Memory struct {
	TotalMB     float64 `json:"total"`
	UsedMB      float64 `json:"used"`
	FreeMB      float64 `json:"free"`
	PercentUsed float64 `json:"percent_used"`
}

// HostReading carries host-level stats alongside the GPU snapshots.
type HostReading struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  float64 `json:"memory_used"`
	MemoryTotalMB float64 `json:"memory_total"`
}

type TelemetryRequest struct {
	Timestamp time.Time    `json:"timestamp"`
	GPUs      []GPUReading `json:"gpus"`
	Host      *HostReading `json:"host,omitempty"`
}

type AckResponse struct {
	Status string `json:"status"`
}

// NextCommandResponse carries at most one command. Command is nil when
// the agent's queue is empty.
type NextCommandResponse struct {
	CommandID int64   `json:"command_id,omitempty"`
	Command   *string `json:"command"`
}

type ReportOutputRequest struct {
	CommandID int64  `json:"command_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Output    string `json:"output"`
}

type CommandStatusResponse struct {
	CommandID int64     `json:"command_id"`
	Status    string    `json:"status"`
	Output    string    `json:"output"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
