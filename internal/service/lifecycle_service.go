package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusops/invigil-api/internal/dto"
	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/notify"
)

type lifecycleAllocationStore interface {
	FindByID(ctx context.Context, id string) (*models.Allocation, error)
	List(ctx context.Context, filter models.AllocationFilter) ([]models.Allocation, error)
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, allocations []models.Allocation) error
	UpdateStatusGuarded(ctx context.Context, id string, from, to models.AllocationStatus) error
	UpdateAcknowledgment(ctx context.Context, id string, ack models.AcknowledgmentStatus, status models.AllocationStatus) error
	UpdateLiveStatus(ctx context.Context, id string, live models.LiveStatus) error
}

type lifecycleReserveStore interface {
	ListByAllocation(ctx context.Context, allocationID string) ([]models.ReservedAllocation, error)
	FindByAllocationAndFaculty(ctx context.Context, allocationID, facultyID string) (*models.ReservedAllocation, error)
	UpdateStatusGuarded(ctx context.Context, id string, from, to models.ReserveStatus) error
}

// LifecycleService drives a duty assignment through acknowledgment, live
// presence reporting, reserve activation and cancellation. Transitions are
// serialized per allocation by status-guarded updates; a lost race surfaces
// as a conflict, never as a silent overwrite.
type LifecycleService struct {
	allocs   lifecycleAllocationStore
	reserves lifecycleReserveStore
	emitter  notify.Emitter
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(allocs lifecycleAllocationStore, reserves lifecycleReserveStore, emitter notify.Emitter, validate *validator.Validate, logger *zap.Logger) *LifecycleService {
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		allocs:   allocs,
		reserves: reserves,
		emitter:  emitter,
		validate: validate,
		logger:   logger,
		now:      time.Now,
	}
}

// Acknowledge records the assignee's confirm/decline decision. Allowed only
// for the assignee, before the acknowledgment deadline, while the duty is
// still pending.
func (s *LifecycleService) Acknowledge(ctx context.Context, allocationID, facultyID string, req dto.AcknowledgeRequest) (*models.Allocation, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid acknowledgment request")
	}

	allocation, err := s.loadAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if facultyID != "" && allocation.FacultyID != facultyID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "only the assigned faculty member may acknowledge this duty")
	}
	if allocation.Status != models.AllocationStatusAssigned {
		return nil, apperrors.Clone(apperrors.ErrConflict, "duty is no longer awaiting acknowledgment")
	}
	if s.now().After(allocation.AckDeadline) {
		return nil, apperrors.Clone(apperrors.ErrWindowClosed, "acknowledgment deadline has passed")
	}

	ack := models.AcknowledgmentStatus(req.Status)
	status := allocation.Status
	if ack == models.AckStatusAcknowledged {
		status = models.AllocationStatusConfirmed
	}

	if err := s.allocs.UpdateAcknowledgment(ctx, allocationID, ack, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "duty was acknowledged or replaced by a concurrent request")
		}
		return nil, apperrors.FromError(err)
	}

	allocation.AckStatus = ack
	allocation.Status = status

	if ack == models.AckStatusUnavailable {
		s.emitter.Emit(notify.Event{
			ID:   uuid.NewString(),
			Type: notify.EventFacultyUnavailable,
			Payload: map[string]any{
				"allocationId": allocation.ID,
				"facultyId":    allocation.FacultyID,
				"examId":       allocation.ExamID,
			},
			Emitted: s.now().UTC(),
		})
	}
	s.logger.Info("duty acknowledgment recorded",
		zap.String("allocation_id", allocationID),
		zap.String("ack_status", string(ack)))
	return allocation, nil
}

// ReportLiveStatus records a presence report, valid only inside the window
// opening 30 minutes before exam start and closing at start.
func (s *LifecycleService) ReportLiveStatus(ctx context.Context, allocationID, facultyID string, req dto.LiveStatusRequest) (*models.Allocation, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid live status request")
	}

	allocation, err := s.loadAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if facultyID != "" && allocation.FacultyID != facultyID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "only the assigned faculty member may report live status")
	}
	if allocation.Status == models.AllocationStatusCancelled || allocation.Status == models.AllocationStatusReplaced {
		return nil, apperrors.Clone(apperrors.ErrConflict, "duty is no longer active")
	}
	now := s.now()
	if now.Before(allocation.LiveWindowStart) || now.After(allocation.LiveWindowEnd) {
		return nil, apperrors.Clone(apperrors.ErrWindowClosed, "live status can only be reported in the 30 minutes before exam start")
	}

	live := models.LiveStatus(req.Status)
	if err := s.allocs.UpdateLiveStatus(ctx, allocationID, live); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "allocation not found")
		}
		return nil, apperrors.FromError(err)
	}
	allocation.LiveStatus = live

	if live == models.LiveStatusUnableToReach {
		s.emitter.Emit(notify.Event{
			ID:   uuid.NewString(),
			Type: notify.EventFacultyUnableReach,
			Payload: map[string]any{
				"allocationId": allocation.ID,
				"facultyId":    allocation.FacultyID,
				"examId":       allocation.ExamID,
			},
			Emitted: now.UTC(),
		})
	}
	return allocation, nil
}

// ListReserves returns the reserve candidates of an allocation in priority
// order.
func (s *LifecycleService) ListReserves(ctx context.Context, allocationID string) ([]models.ReservedAllocation, error) {
	if _, err := s.loadAllocation(ctx, allocationID); err != nil {
		return nil, err
	}
	reserves, err := s.reserves.ListByAllocation(ctx, allocationID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return reserves, nil
}

// ActivateReserve replaces the primary assignee with one of the allocation's
// reserve candidates: the old duty moves to replaced, the reserve record is
// consumed, and a fresh duty is created for the reserve faculty member with
// its own acknowledgment cycle.
func (s *LifecycleService) ActivateReserve(ctx context.Context, allocationID string, req dto.ActivateReserveRequest) (*models.Allocation, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid reserve activation request")
	}

	allocation, err := s.loadAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if allocation.Status != models.AllocationStatusAssigned && allocation.Status != models.AllocationStatusConfirmed {
		return nil, apperrors.Clone(apperrors.ErrConflict, "duty can no longer be replaced")
	}

	reserve, err := s.reserves.FindByAllocationAndFaculty(ctx, allocationID, req.ReserveFacultyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "faculty member is not a reserve for this duty")
		}
		return nil, apperrors.FromError(err)
	}
	if reserve.Status != models.ReserveStatusAvailable && reserve.Status != models.ReserveStatusSuggested {
		return nil, apperrors.Clone(apperrors.ErrConflict, "reserve has already been used")
	}

	// Consuming the reserve first makes the record the serialization point
	// for racing activations of the same reserve.
	if err := s.reserves.UpdateStatusGuarded(ctx, reserve.ID, reserve.Status, models.ReserveStatusUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "reserve was activated by a concurrent request")
		}
		return nil, apperrors.FromError(err)
	}
	if err := s.allocs.UpdateStatusGuarded(ctx, allocationID, allocation.Status, models.AllocationStatusReplaced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "duty was modified by a concurrent request")
		}
		return nil, apperrors.FromError(err)
	}

	replacement := models.Allocation{
		ID:              uuid.NewString(),
		ExamID:          allocation.ExamID,
		ClassroomID:     allocation.ClassroomID,
		FacultyID:       reserve.FacultyID,
		Date:            allocation.Date,
		StartTime:       allocation.StartTime,
		EndTime:         allocation.EndTime,
		Campus:          allocation.Campus,
		Department:      allocation.Department,
		Status:          models.AllocationStatusAssigned,
		AckStatus:       models.AckStatusPending,
		AckDeadline:     s.replacementAckDeadline(allocation),
		LiveStatus:      models.LiveStatusNone,
		LiveWindowStart: allocation.LiveWindowStart,
		LiveWindowEnd:   allocation.LiveWindowEnd,
	}
	if err := s.allocs.BulkCreate(ctx, nil, []models.Allocation{replacement}); err != nil {
		return nil, apperrors.FromError(err)
	}

	s.emitter.Emit(notify.Event{
		ID:   uuid.NewString(),
		Type: notify.EventFacultyReplaced,
		Payload: map[string]any{
			"allocationId":    allocation.ID,
			"replacementId":   replacement.ID,
			"outgoingFaculty": allocation.FacultyID,
			"incomingFaculty": reserve.FacultyID,
			"examId":          allocation.ExamID,
		},
		Emitted: s.now().UTC(),
	})
	s.logger.Info("reserve activated",
		zap.String("allocation_id", allocationID),
		zap.String("reserve_faculty_id", reserve.FacultyID))
	return &replacement, nil
}

// replacementAckGrace is the minimum acknowledgment window granted to a
// faculty member stepping in for a replaced duty.
const replacementAckGrace = 2 * time.Hour

// replacementAckDeadline gives the incoming faculty member a live
// acknowledgment window. Activations typically happen close to or after the
// original deadline, which would otherwise be inherited already lapsed. The
// deadline never moves past exam start.
func (s *LifecycleService) replacementAckDeadline(allocation *models.Allocation) time.Time {
	deadline := allocation.AckDeadline
	if now := s.now(); !deadline.After(now) {
		deadline = now.Add(replacementAckGrace)
	}
	if startMin, err := parseClock(allocation.StartTime); err == nil {
		if start := atClock(allocation.Date, startMin); deadline.After(start) {
			deadline = start
		}
	}
	return deadline
}

// Cancel removes a duty from the schedule.
func (s *LifecycleService) Cancel(ctx context.Context, allocationID string) error {
	allocation, err := s.loadAllocation(ctx, allocationID)
	if err != nil {
		return err
	}
	if allocation.Status == models.AllocationStatusCancelled {
		return apperrors.Clone(apperrors.ErrConflict, "duty is already cancelled")
	}

	if err := s.allocs.UpdateStatusGuarded(ctx, allocationID, allocation.Status, models.AllocationStatusCancelled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrConflict, "duty was modified by a concurrent request")
		}
		return apperrors.FromError(err)
	}

	s.emitter.Emit(notify.Event{
		ID:   uuid.NewString(),
		Type: notify.EventAllocationCancelled,
		Payload: map[string]any{
			"allocationId": allocation.ID,
			"facultyId":    allocation.FacultyID,
			"examId":       allocation.ExamID,
		},
		Emitted: s.now().UTC(),
	})
	return nil
}

// ListAllocations exposes filtered duty listings for faculty and admin views.
func (s *LifecycleService) ListAllocations(ctx context.Context, filter models.AllocationFilter) ([]models.Allocation, error) {
	allocations, err := s.allocs.List(ctx, filter)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return allocations, nil
}

func (s *LifecycleService) loadAllocation(ctx context.Context, id string) (*models.Allocation, error) {
	allocation, err := s.allocs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "allocation not found")
		}
		return nil, apperrors.FromError(err)
	}
	return allocation, nil
}
