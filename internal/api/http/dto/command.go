package dto

import "time"

type EnqueueCommandRequest struct {
	AgentIDs []string `json:"agent_ids" binding:"required,min=1"`
	Command  string   `json:"command" binding:"required"`
}

type CommandResponse struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EnqueueCommandResponse struct {
	Commands []CommandResponse `json:"commands"`
}

type ListCommandsResponse struct {
	Commands []CommandResponse `json:"commands"`
}
