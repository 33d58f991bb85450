package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/gpufleet/fleet/internal/protocol"
)

// PostgresStore persists commands in the commands table. The claim and
// report operations rely on single conditional statements so the
// lifecycle invariants hold across multiple coordinator instances
// sharing one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const commandColumns = `id, agent_id, command_text, status, output, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, agentID, text string) (*Command, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO commands (agent_id, command_text, status)
		 VALUES ($1, $2, $3)
		 RETURNING `+commandColumns,
		agentID, text, protocol.StatusPending)
	cmd, err := scanCommand(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrUnknownAgent
		}
		return nil, fmt.Errorf("insert command: %w", err)
	}
	return cmd, nil
}

func (s *PostgresStore) Get(ctx context.Context, commandID int64) (*Command, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE id = $1`, commandID)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("get command: %w", err)
	}
	return cmd, nil
}

// ClaimNext transitions the oldest pending command for agentID to
// running and returns it. The inner SELECT takes a row lock with SKIP
// LOCKED so concurrent claims line up on distinct rows instead of
// double-claiming one.
func (s *PostgresStore) ClaimNext(ctx context.Context, agentID string) (*Command, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE commands SET status = $2, updated_at = now()
		 WHERE id = (
		     SELECT id FROM commands
		     WHERE agent_id = $1 AND status = $3
		     ORDER BY id
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+commandColumns,
		agentID, protocol.StatusRunning, protocol.StatusPending)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingCommand
		}
		return nil, fmt.Errorf("claim command: %w", err)
	}
	return cmd, nil
}

// UpdateReport applies an agent report. Terminal rows never match the
// WHERE clause, so a retried report against a finished command is a
// no-op. A running report against a stopping command keeps the
// stopping status so the cancellation request stays visible to the
// agent.
func (s *PostgresStore) UpdateReport(ctx context.Context, commandID int64, status, output string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE commands
		 SET output = $2,
		     updated_at = now(),
		     status = CASE
		         WHEN $3 = 'running' AND status = 'stopping' THEN 'stopping'
		         ELSE $3
		     END
		 WHERE id = $1 AND status IN ('running', 'stopping')`,
		commandID, output, status)
	if err != nil {
		return fmt.Errorf("update command report: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequestStop(ctx context.Context, commandID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE commands SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		commandID, protocol.StatusStopping, protocol.StatusRunning)
	if err != nil {
		return fmt.Errorf("request stop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, commandID); getErr != nil {
			return getErr
		}
		return ErrNotRunning
	}
	return nil
}

func (s *PostgresStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]Command, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commandColumns+` FROM commands
		 WHERE agent_id = $1 ORDER BY id DESC LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var result []Command
	for rows.Next() {
		var c Command
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Text, &c.Status, &c.Output, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCommand(row pgx.Row) (*Command, error) {
	var c Command
	if err := row.Scan(&c.ID, &c.AgentID, &c.Text, &c.Status, &c.Output, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
