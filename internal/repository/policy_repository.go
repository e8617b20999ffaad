package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/invigil-api/internal/models"
)

const policyColumns = `id, max_hours_per_day, max_duties_per_faculty, allow_same_day_repetition, time_gap_between_duties, department_preference_weight, campus_preference_weight, active, updated_by, updated_at`

// PolicyRepository manages the allocation policy records.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs a PolicyRepository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// GetActive fetches the single active policy.
func (r *PolicyRepository) GetActive(ctx context.Context) (*models.AllocationPolicy, error) {
	query := fmt.Sprintf("SELECT %s FROM allocation_policies WHERE active = TRUE ORDER BY updated_at DESC LIMIT 1", policyColumns)
	var policy models.AllocationPolicy
	if err := r.db.GetContext(ctx, &policy, query); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Upsert stores a policy, deactivating the previous active record when the
// new one is flagged active.
func (r *PolicyRepository) Upsert(ctx context.Context, policy *models.AllocationPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	policy.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin policy tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if policy.Active {
		if _, err = tx.ExecContext(ctx, `UPDATE allocation_policies SET active = FALSE WHERE active = TRUE AND id <> $1`, policy.ID); err != nil {
			return fmt.Errorf("deactivate previous policy: %w", err)
		}
	}

	const query = `
INSERT INTO allocation_policies (id, max_hours_per_day, max_duties_per_faculty, allow_same_day_repetition, time_gap_between_duties, department_preference_weight, campus_preference_weight, active, updated_by, updated_at)
VALUES (:id, :max_hours_per_day, :max_duties_per_faculty, :allow_same_day_repetition, :time_gap_between_duties, :department_preference_weight, :campus_preference_weight, :active, :updated_by, :updated_at)
ON CONFLICT (id)
DO UPDATE SET max_hours_per_day = EXCLUDED.max_hours_per_day, max_duties_per_faculty = EXCLUDED.max_duties_per_faculty,
              allow_same_day_repetition = EXCLUDED.allow_same_day_repetition, time_gap_between_duties = EXCLUDED.time_gap_between_duties,
              department_preference_weight = EXCLUDED.department_preference_weight, campus_preference_weight = EXCLUDED.campus_preference_weight,
              active = EXCLUDED.active, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err = sqlx.NamedExecContext(ctx, tx, query, policy); err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit policy tx: %w", err)
	}
	return nil
}
