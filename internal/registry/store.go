package registry

import (
	"context"
	"errors"
)

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrAgentExists       = errors.New("agent already exists")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrEmptyAgentID      = errors.New("agent ID must not be empty")
)

// Store is the persistence contract for agent identities. Deleting an
// agent cascades to its commands and telemetry history.
type Store interface {
	Create(ctx context.Context, agent Agent) error
	GetByID(ctx context.Context, agentID string) (*Agent, error)
	GetByCredential(ctx context.Context, credential string) (*Agent, error)
	TouchLastContact(ctx context.Context, agentID string) error
	Delete(ctx context.Context, agentID string) error
	List(ctx context.Context) ([]Agent, error)
}
