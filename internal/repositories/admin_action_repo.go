package repositories

import (
	"context"
	"fmt"

	"github.com/stagehub/pinguard/internal/database"
	"github.com/stagehub/pinguard/internal/models"
)

// AdminActionRepository records administrative interventions such as
// unlocks. These are deliberately not AttemptRecords.
type AdminActionRepository struct {
	db *database.DB
}

// NewAdminActionRepository creates a new AdminActionRepository
func NewAdminActionRepository(db *database.DB) *AdminActionRepository {
	return &AdminActionRepository{db: db}
}

// Create writes one admin action row
func (r *AdminActionRepository) Create(ctx context.Context, action *models.AdminAction) error {
	query := `
		INSERT INTO admin_action (action, entity_type, entity_id, actor, ip_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		action.Action,
		action.EntityType,
		action.EntityID,
		action.Actor,
		action.IPAddress,
	).Scan(&action.ID, &action.CreatedAt)

	return database.MapPostgresError(err)
}

// ListByEntity returns the administrative history for an entity, newest first
func (r *AdminActionRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AdminAction, error) {
	query := `
		SELECT id, action, entity_type, entity_id, actor, ip_address, created_at
		FROM admin_action
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool.Query(ctx, query, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin actions: %w", err)
	}
	defer rows.Close()

	actions := make([]*models.AdminAction, 0)
	for rows.Next() {
		var a models.AdminAction
		err := rows.Scan(&a.ID, &a.Action, &a.EntityType, &a.EntityID, &a.Actor, &a.IPAddress, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin action: %w", err)
		}
		actions = append(actions, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin action rows: %w", err)
	}

	return actions, nil
}
