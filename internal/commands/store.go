package commands

import (
	"context"
	"errors"
)

var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrNotOwner         = errors.New("command not owned by caller")
	ErrNoPendingCommand = errors.New("no pending command")
	ErrNotRunning       = errors.New("command is not running")
	ErrEmptyCommand     = errors.New("command text must not be empty")
	ErrInvalidStatus    = errors.New("invalid command status")
	ErrUnknownAgent     = errors.New("unknown agent")
)

// Store is the persistence contract for the command queue.
//
// ClaimNext must perform the pending-to-running transition atomically
// with the read: two concurrent claims for the same agent must never
// both receive the same command, even across coordinator instances.
//
// UpdateReport must leave terminal rows untouched and must not let an
// incremental running report overwrite a stopping status.
type Store interface {
	Create(ctx context.Context, agentID, text string) (*Command, error)
	Get(ctx context.Context, commandID int64) (*Command, error)
	ClaimNext(ctx context.Context, agentID string) (*Command, error)
	UpdateReport(ctx context.Context, commandID int64, status, output string) error
	RequestStop(ctx context.Context, commandID int64) error
	ListByAgent(ctx context.Context, agentID string, limit int) ([]Command, error)
}
