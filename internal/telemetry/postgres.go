package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists readings in gpu_readings and the latest
// submission per agent in telemetry_latest.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertReadings(ctx context.Context, readings []Reading) error {
	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(
			`INSERT INTO gpu_readings
			     (agent_id, device_index, recorded_at, model, temperature, utilization,
			      power_draw, memory_total_mb, memory_used_mb, memory_free_mb, memory_percent_used)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (agent_id, device_index, recorded_at) DO NOTHING`,
			r.AgentID, r.DeviceIndex, r.Timestamp, r.Model, r.Temperature, r.Utilization,
			r.PowerDraw, r.MemoryTotalMB, r.MemoryUsedMB, r.MemoryFreeMB, r.MemoryPercentUsed)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetLatest(ctx context.Context, snapshot Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO telemetry_latest (agent_id, payload, received_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (agent_id) DO UPDATE
		 SET payload = EXCLUDED.payload, received_at = EXCLUDED.received_at`,
		snapshot.AgentID, snapshot.Payload, snapshot.ReceivedAt)
	if err != nil {
		return fmt.Errorf("set latest telemetry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatest(ctx context.Context, agentID string) (*Snapshot, error) {
	snapshot := Snapshot{AgentID: agentID}
	err := s.pool.QueryRow(ctx,
		`SELECT payload, received_at FROM telemetry_latest WHERE agent_id = $1`,
		agentID).Scan(&snapshot.Payload, &snapshot.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("get latest telemetry: %w", err)
	}
	return &snapshot, nil
}

func (s *PostgresStore) Range(ctx context.Context, agentID string, deviceIndex int, from, to time.Time) ([]Reading, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, device_index, recorded_at, model, temperature, utilization,
		        power_draw, memory_total_mb, memory_used_mb, memory_free_mb, memory_percent_used
		 FROM gpu_readings
		 WHERE agent_id = $1 AND device_index = $2 AND recorded_at >= $3 AND recorded_at <= $4
		 ORDER BY recorded_at`,
		agentID, deviceIndex, from, to)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var result []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.AgentID, &r.DeviceIndex, &r.Timestamp, &r.Model, &r.Temperature,
			&r.Utilization, &r.PowerDraw, &r.MemoryTotalMB, &r.MemoryUsedMB, &r.MemoryFreeMB,
			&r.MemoryPercentUsed); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
