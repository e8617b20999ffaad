package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/invigil-api/internal/models"
)

const reservedColumns = `id, exam_id, allocation_id, faculty_id, priority, status, created_at, updated_at`

// ReservedAllocationRepository manages persistence for reserve invigilators.
type ReservedAllocationRepository struct {
	db *sqlx.DB
}

// NewReservedAllocationRepository constructs a ReservedAllocationRepository.
func NewReservedAllocationRepository(db *sqlx.DB) *ReservedAllocationRepository {
	return &ReservedAllocationRepository{db: db}
}

// BulkCreate inserts reserve records within the run transaction.
func (r *ReservedAllocationRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, reserves []models.ReservedAllocation) error {
	if len(reserves) == 0 {
		return nil
	}
	if exec == nil {
		exec = r.db
	}
	const query = `
INSERT INTO reserved_allocations (id, exam_id, allocation_id, faculty_id, priority, status, created_at, updated_at)
VALUES (:id, :exam_id, :allocation_id, :faculty_id, :priority, :status, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range reserves {
		if reserves[i].ID == "" {
			reserves[i].ID = uuid.NewString()
		}
		if reserves[i].Status == "" {
			reserves[i].Status = models.ReserveStatusAvailable
		}
		if reserves[i].CreatedAt.IsZero() {
			reserves[i].CreatedAt = now
		}
		reserves[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, exec, query, reserves[i]); err != nil {
			return fmt.Errorf("insert reserved allocation: %w", err)
		}
	}
	return nil
}

// ListByAllocation returns reserves for a primary allocation ordered by priority.
func (r *ReservedAllocationRepository) ListByAllocation(ctx context.Context, allocationID string) ([]models.ReservedAllocation, error) {
	query := fmt.Sprintf("SELECT %s FROM reserved_allocations WHERE allocation_id = $1 ORDER BY priority ASC", reservedColumns)
	var reserves []models.ReservedAllocation
	if err := r.db.SelectContext(ctx, &reserves, query, allocationID); err != nil {
		return nil, fmt.Errorf("list reserved allocations: %w", err)
	}
	return reserves, nil
}

// FindByAllocationAndFaculty fetches the reserve entry linking a faculty
// member to a primary allocation.
func (r *ReservedAllocationRepository) FindByAllocationAndFaculty(ctx context.Context, allocationID, facultyID string) (*models.ReservedAllocation, error) {
	query := fmt.Sprintf("SELECT %s FROM reserved_allocations WHERE allocation_id = $1 AND faculty_id = $2", reservedColumns)
	var reserve models.ReservedAllocation
	if err := r.db.GetContext(ctx, &reserve, query, allocationID, facultyID); err != nil {
		return nil, err
	}
	return &reserve, nil
}

// UpdateStatusGuarded transitions a reserve only from the expected status.
// Returns sql.ErrNoRows when another activation won the race.
func (r *ReservedAllocationRepository) UpdateStatusGuarded(ctx context.Context, id string, from, to models.ReserveStatus) error {
	const query = `UPDATE reserved_allocations SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("update reserved allocation status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
