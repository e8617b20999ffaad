package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/campusops/invigil-api/internal/models"
)

const conflictColumns = `id, type, severity, faculty_id, allocation_ids, description, suggested_actions, auto_resolved, resolved_by, resolved_at, status, created_at, updated_at`

// ConflictRepository manages persistence for detected conflicts.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository constructs a ConflictRepository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// DeleteUnresolved removes conflicts still awaiting triage. The detector
// re-derives the full set on each run; resolved and ignored conflicts are
// terminal and survive.
func (r *ConflictRepository) DeleteUnresolved(ctx context.Context) error {
	const query = `DELETE FROM conflicts WHERE status IN ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, models.ConflictStatusDetected, models.ConflictStatusResolving); err != nil {
		return fmt.Errorf("delete unresolved conflicts: %w", err)
	}
	return nil
}

// BulkCreate inserts freshly detected conflicts.
func (r *ConflictRepository) BulkCreate(ctx context.Context, conflicts []models.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	const query = `
INSERT INTO conflicts (id, type, severity, faculty_id, allocation_ids, description, suggested_actions, auto_resolved, resolved_by, resolved_at, status, created_at, updated_at)
VALUES (:id, :type, :severity, :faculty_id, :allocation_ids, :description, :suggested_actions, :auto_resolved, :resolved_by, :resolved_at, :status, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range conflicts {
		if conflicts[i].ID == "" {
			conflicts[i].ID = uuid.NewString()
		}
		if conflicts[i].Status == "" {
			conflicts[i].Status = models.ConflictStatusDetected
		}
		if len(conflicts[i].AllocationIDs) == 0 {
			conflicts[i].AllocationIDs = types.JSONText(`[]`)
		}
		if len(conflicts[i].SuggestedActions) == 0 {
			conflicts[i].SuggestedActions = types.JSONText(`[]`)
		}
		if conflicts[i].CreatedAt.IsZero() {
			conflicts[i].CreatedAt = now
		}
		conflicts[i].UpdatedAt = now
		if _, err := r.db.NamedExecContext(ctx, query, conflicts[i]); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}
	return nil
}

// List returns conflicts, optionally filtered by status, newest first.
func (r *ConflictRepository) List(ctx context.Context, statuses []models.ConflictStatus) ([]models.Conflict, error) {
	base := fmt.Sprintf("SELECT %s FROM conflicts", conflictColumns)
	var args []interface{}
	if len(statuses) > 0 {
		placeholder := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholder[i] = fmt.Sprintf("$%d", len(args))
		}
		base += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholder, ", "))
	}
	base += " ORDER BY created_at DESC"

	var conflicts []models.Conflict
	if err := r.db.SelectContext(ctx, &conflicts, base, args...); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

// UpdateStatus marks a conflict resolved or ignored.
func (r *ConflictRepository) UpdateStatus(ctx context.Context, id string, status models.ConflictStatus, resolvedBy string) error {
	const query = `UPDATE conflicts SET status = $1, resolved_by = $2, resolved_at = NOW(), updated_at = NOW() WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, resolvedBy, id)
	if err != nil {
		return fmt.Errorf("update conflict status: %w", err)
	}
	return requireRowAffected(result)
}
