package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smartcity/racc-dashboard/internal/domain"
)

const historyLimit = 500

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const schema = `
CREATE TABLE IF NOT EXISTS incident_snapshots (
	id                      BIGSERIAL PRIMARY KEY,
	total                   INTEGER NOT NULL,
	severe_count            INTEGER NOT NULL,
	severe_fraction_percent DOUBLE PRECISION NOT NULL,
	top_affected_road       TEXT NOT NULL DEFAULT '',
	timestamp               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incident_snapshots_timestamp ON incident_snapshots (timestamp DESC);
`

// PostgresRepository implements domain.SnapshotRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the snapshot table when it does not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to migrate: %w", err)
	}
	return nil
}

// SaveSnapshot persists one polling cycle summary
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	query, args, err := insertSnapshot(snap).ToSql()
	if err != nil {
		return fmt.Errorf("postgres: failed to build insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshots retrieves snapshot history between from and to, newest first
func (r *PostgresRepository) GetSnapshots(ctx context.Context, from, to time.Time) ([]domain.Snapshot, error) {
	query, args, err := selectSnapshots(from, to).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var results []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		if err := rows.Scan(&s.Total, &s.SevereCount, &s.SevereFractionPercent, &s.TopAffectedRoad, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan snapshot row: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read snapshots: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func insertSnapshot(snap domain.Snapshot) sq.InsertBuilder {
	return psq.Insert("incident_snapshots").
		Columns("total", "severe_count", "severe_fraction_percent", "top_affected_road", "timestamp").
		Values(snap.Total, snap.SevereCount, snap.SevereFractionPercent, snap.TopAffectedRoad, snap.Timestamp)
}

func selectSnapshots(from, to time.Time) sq.SelectBuilder {
	return psq.Select("total", "severe_count", "severe_fraction_percent", "top_affected_road", "timestamp").
		From("incident_snapshots").
		Where(sq.GtOrEq{"timestamp": from}).
		Where(sq.LtOrEq{"timestamp": to}).
		OrderBy("timestamp DESC").
		Limit(historyLimit)
}
