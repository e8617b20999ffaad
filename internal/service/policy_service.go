package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/invigil-api/internal/dto"
	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
)

type policyStore interface {
	GetActive(ctx context.Context) (*models.AllocationPolicy, error)
	Upsert(ctx context.Context, policy *models.AllocationPolicy) error
}

// PolicyService manages the active allocation policy record.
type PolicyService struct {
	repo     policyStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(repo policyStore, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{repo: repo, validate: validate, logger: logger}
}

// Get returns the active policy, falling back to the built-in defaults when
// none has been stored yet.
func (s *PolicyService) Get(ctx context.Context) (models.AllocationPolicy, error) {
	policy, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultAllocationPolicy(), nil
		}
		return models.AllocationPolicy{}, apperrors.FromError(err)
	}
	return *policy, nil
}

// Update stores a new active policy. The previous active record is
// deactivated; runs already in flight keep their snapshot.
func (s *PolicyService) Update(ctx context.Context, req dto.PolicyUpdateRequest, updatedBy string) (models.AllocationPolicy, error) {
	if err := s.validate.Struct(&req); err != nil {
		return models.AllocationPolicy{}, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid policy payload")
	}

	policy := models.AllocationPolicy{
		MaxHoursPerDay:             req.MaxHoursPerDay,
		MaxDutiesPerFaculty:        req.MaxDutiesPerFaculty,
		AllowSameDayRepetition:     req.AllowSameDayRepetition,
		TimeGapBetweenDuties:       req.TimeGapBetweenDuties,
		DepartmentPreferenceWeight: req.DepartmentPreferenceWeight,
		CampusPreferenceWeight:     req.CampusPreferenceWeight,
		Active:                     true,
	}
	if updatedBy != "" {
		policy.UpdatedBy = &updatedBy
	}

	if err := s.repo.Upsert(ctx, &policy); err != nil {
		return models.AllocationPolicy{}, apperrors.FromError(err)
	}
	s.logger.Info("allocation policy updated",
		zap.Float64("max_hours_per_day", policy.MaxHoursPerDay),
		zap.Bool("allow_same_day_repetition", policy.AllowSameDayRepetition))
	return policy, nil
}
