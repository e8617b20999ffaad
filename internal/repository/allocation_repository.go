package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/invigil-api/internal/models"
)

const allocationColumns = `id, exam_id, classroom_id, faculty_id, date, start_time, end_time, campus, department, status, ack_status, ack_deadline, live_status, live_window_start, live_window_end, created_at, updated_at`

// AllocationRepository manages persistence for duty allocations.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs an AllocationRepository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// BeginTxx starts a transaction for an allocation run.
func (r *AllocationRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// List returns allocations matching the filter ordered by date and start time.
func (r *AllocationRepository) List(ctx context.Context, filter models.AllocationFilter) ([]models.Allocation, error) {
	base := fmt.Sprintf("SELECT %s FROM allocations WHERE 1=1", allocationColumns)
	var conditions []string
	var args []interface{}

	if filter.FacultyID != "" {
		args = append(args, filter.FacultyID)
		conditions = append(conditions, fmt.Sprintf("faculty_id = $%d", len(args)))
	}
	if filter.ExamID != "" {
		args = append(args, filter.ExamID)
		conditions = append(conditions, fmt.Sprintf("exam_id = $%d", len(args)))
	}
	if filter.Campus != "" {
		args = append(args, filter.Campus)
		conditions = append(conditions, fmt.Sprintf("campus = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.Date != nil {
		args = append(args, *filter.Date)
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholder := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholder[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholder, ", ")))
	}

	query := base
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date ASC, start_time ASC"

	var allocations []models.Allocation
	if err := r.db.SelectContext(ctx, &allocations, query, args...); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return allocations, nil
}

// ListNonCancelled returns every allocation except cancelled ones. The
// allocation engine seeds its workload tracker and the conflict detector
// derives its groups from this set.
func (r *AllocationRepository) ListNonCancelled(ctx context.Context) ([]models.Allocation, error) {
	query := fmt.Sprintf("SELECT %s FROM allocations WHERE status <> $1 ORDER BY date ASC, start_time ASC", allocationColumns)
	var allocations []models.Allocation
	if err := r.db.SelectContext(ctx, &allocations, query, models.AllocationStatusCancelled); err != nil {
		return nil, fmt.Errorf("list non-cancelled allocations: %w", err)
	}
	return allocations, nil
}

// ListByDate returns non-cancelled allocations for a single date. Used for the
// cross-run time-conflict check against committed data.
func (r *AllocationRepository) ListByDate(ctx context.Context, date time.Time) ([]models.Allocation, error) {
	query := fmt.Sprintf("SELECT %s FROM allocations WHERE date = $1 AND status <> $2 ORDER BY start_time ASC", allocationColumns)
	var allocations []models.Allocation
	if err := r.db.SelectContext(ctx, &allocations, query, date, models.AllocationStatusCancelled); err != nil {
		return nil, fmt.Errorf("list allocations by date: %w", err)
	}
	return allocations, nil
}

// FindByID fetches an allocation by ID.
func (r *AllocationRepository) FindByID(ctx context.Context, id string) (*models.Allocation, error) {
	query := fmt.Sprintf("SELECT %s FROM allocations WHERE id = $1", allocationColumns)
	var allocation models.Allocation
	if err := r.db.GetContext(ctx, &allocation, query, id); err != nil {
		return nil, err
	}
	return &allocation, nil
}

// BulkCreate inserts allocations within the run transaction, assigning IDs
// and timestamps in place.
func (r *AllocationRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, allocations []models.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	if exec == nil {
		exec = r.db
	}
	const query = `
INSERT INTO allocations (id, exam_id, classroom_id, faculty_id, date, start_time, end_time, campus, department, status, ack_status, ack_deadline, live_status, live_window_start, live_window_end, created_at, updated_at)
VALUES (:id, :exam_id, :classroom_id, :faculty_id, :date, :start_time, :end_time, :campus, :department, :status, :ack_status, :ack_deadline, :live_status, :live_window_start, :live_window_end, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range allocations {
		if allocations[i].ID == "" {
			allocations[i].ID = uuid.NewString()
		}
		if allocations[i].CreatedAt.IsZero() {
			allocations[i].CreatedAt = now
		}
		allocations[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, exec, query, allocations[i]); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
	}
	return nil
}

// UpdateStatusGuarded transitions status only when the current status matches
// the expected one. Returns sql.ErrNoRows when another actor won the race.
func (r *AllocationRepository) UpdateStatusGuarded(ctx context.Context, id string, from, to models.AllocationStatus) error {
	const query = `UPDATE allocations SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("update allocation status: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateAcknowledgment records the faculty acknowledgment decision. The guard
// on the current pending sub-state serializes racing acknowledgments and
// replacements.
func (r *AllocationRepository) UpdateAcknowledgment(ctx context.Context, id string, ack models.AcknowledgmentStatus, status models.AllocationStatus) error {
	const query = `UPDATE allocations SET ack_status = $1, status = $2, updated_at = NOW() WHERE id = $3 AND ack_status = $4`
	result, err := r.db.ExecContext(ctx, query, ack, status, id, models.AckStatusPending)
	if err != nil {
		return fmt.Errorf("update allocation acknowledgment: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateLiveStatus records a live presence report.
func (r *AllocationRepository) UpdateLiveStatus(ctx context.Context, id string, live models.LiveStatus) error {
	const query = `UPDATE allocations SET live_status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, live, id)
	if err != nil {
		return fmt.Errorf("update allocation live status: %w", err)
	}
	return requireRowAffected(result)
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
