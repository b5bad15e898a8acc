package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stagehub/pinguard/internal/database"
	"github.com/stagehub/pinguard/internal/models"
)

// AttemptRepository handles the append-only PIN attempt ledger
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Append writes one attempt row. Rows are never updated or deleted here;
// retention is handled separately by the background purge.
func (r *AttemptRepository) Append(ctx context.Context, attempt *models.AttemptRecord) error {
	query := `
		INSERT INTO attempt_record (entity_type, entity_id, success, ip_address, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.EntityType,
		attempt.EntityID,
		attempt.Success,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.OccurredAt,
	).Scan(&attempt.ID)

	return database.MapPostgresError(err)
}

// ListByEntity returns the audit trail for an entity, newest first
func (r *AttemptRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error) {
	query := `
		SELECT id, entity_type, entity_id, success, ip_address, user_agent, occurred_at
		FROM attempt_record
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool.Query(ctx, query, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempt records: %w", err)
	}

	return scanAttemptRows(rows)
}

// CountByEntity counts all recorded attempts for an entity
func (r *AttemptRepository) CountByEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM attempt_record
		WHERE entity_type = $1 AND entity_id = $2
	`

	var count int64
	err := r.db.Pool.QueryRow(ctx, query, entityType, entityID).Scan(&count)
	return count, err
}

// DeleteOlderThan removes attempt rows past the retention cutoff
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM attempt_record WHERE occurred_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete aged attempt records: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanAttemptRows(rows pgx.Rows) ([]*models.AttemptRecord, error) {
	defer rows.Close()

	records := make([]*models.AttemptRecord, 0)

	for rows.Next() {
		var rec models.AttemptRecord
		err := rows.Scan(
			&rec.ID, &rec.EntityType, &rec.EntityID,
			&rec.Success, &rec.IPAddress, &rec.UserAgent, &rec.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}

	return records, nil
}
