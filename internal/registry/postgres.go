package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists agent identities in the agents table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, agent Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, credential, registered_at, last_contact)
		 VALUES ($1, $2, $3, $4)`,
		agent.ID, agent.Credential, agent.RegisteredAt, agent.LastContact)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAgentExists
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, agentID string) (*Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, credential, registered_at, last_contact FROM agents WHERE id = $1`,
		agentID)
	return scanAgent(row)
}

func (s *PostgresStore) GetByCredential(ctx context.Context, credential string) (*Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, credential, registered_at, last_contact FROM agents WHERE credential = $1`,
		credential)
	agent, err := scanAgent(row)
	if errors.Is(err, ErrAgentNotFound) {
		return nil, ErrInvalidCredential
	}
	return agent, err
}

func (s *PostgresStore) TouchLastContact(ctx context.Context, agentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_contact = now() WHERE id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("touch last_contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, agentID string) error {
	// Commands and telemetry rows go with the agent via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, credential, registered_at, last_contact FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var result []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Credential, &a.RegisteredAt, &a.LastContact); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	if err := row.Scan(&a.ID, &a.Credential, &a.RegisteredAt, &a.LastContact); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return &a, nil
}
