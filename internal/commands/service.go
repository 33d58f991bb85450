package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gpufleet/fleet/internal/protocol"
)

// Service enforces the command lifecycle on top of a Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Enqueue creates one pending command per agent, in the given agent
// order. Each agent's queue is FIFO by command ID; no ordering is
// guaranteed across agents.
func (s *Service) Enqueue(ctx context.Context, agentIDs []string, text string) ([]Command, error) {
	if text == "" {
		return nil, ErrEmptyCommand
	}
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("%w: no agents given", ErrUnknownAgent)
	}

	result := make([]Command, 0, len(agentIDs))
	for _, agentID := range agentIDs {
		cmd, err := s.store.Create(ctx, agentID, text)
		if err != nil {
			return result, fmt.Errorf("enqueue for agent %s: %w", agentID, err)
		}
		result = append(result, *cmd)
		slog.Info("Command enqueued", "command_id", cmd.ID, "agent_id", agentID)
	}
	return result, nil
}

// FetchNext claims the oldest pending command for agentID, moving it to
// running atomically with the read. Returns ErrNoPendingCommand when
// the queue is empty.
func (s *Service) FetchNext(ctx context.Context, agentID string) (*Command, error) {
	cmd, err := s.store.ClaimNext(ctx, agentID)
	if err != nil {
		return nil, err
	}
	slog.Debug("Command claimed", "command_id", cmd.ID, "agent_id", agentID)
	return cmd, nil
}

// Report applies an agent's status/output report to a command it owns.
//
// Reports against commands owned by another agent fail with ErrNotOwner
// without touching the row. Reports against terminal commands are
// accepted as no-ops so agents can retry the final report safely.
func (s *Service) Report(ctx context.Context, agentID string, commandID int64, status, output string) error {
	switch status {
	case protocol.StatusRunning, protocol.StatusCompleted, protocol.StatusFailed, protocol.StatusStopped:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	cmd, err := s.store.Get(ctx, commandID)
	if err != nil {
		return err
	}
	if cmd.AgentID != agentID {
		return ErrNotOwner
	}
	if cmd.Terminal() {
		return nil
	}
	if cmd.Status == protocol.StatusPending {
		return fmt.Errorf("%w: report against unclaimed command", ErrInvalidStatus)
	}

	if err := s.store.UpdateReport(ctx, commandID, status, output); err != nil {
		return err
	}

	if protocol.TerminalStatus(status) {
		slog.Info("Command finished", "command_id", commandID, "agent_id", agentID, "status", status)
	}
	return nil
}

// Get returns a command by ID. Used both by the operator API and by
// agents polling for a stop request mid-execution.
func (s *Service) Get(ctx context.Context, commandID int64) (*Command, error) {
	return s.store.Get(ctx, commandID)
}

// RequestStop asks the owning agent to cancel a running command. The
// transition is cooperative: the agent observes the stopping status on
// its next poll and reports stopped once the subprocess is dead.
func (s *Service) RequestStop(ctx context.Context, commandID int64) error {
	if err := s.store.RequestStop(ctx, commandID); err != nil {
		return err
	}
	slog.Info("Command stop requested", "command_id", commandID)
	return nil
}

// ListByAgent returns the most recent commands for an agent, newest
// first.
func (s *Service) ListByAgent(ctx context.Context, agentID string, limit int) ([]Command, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByAgent(ctx, agentID, limit)
}
