package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/notify"
)

type conflictAllocationLister interface {
	ListNonCancelled(ctx context.Context) ([]models.Allocation, error)
}

type conflictStore interface {
	DeleteUnresolved(ctx context.Context) error
	BulkCreate(ctx context.Context, conflicts []models.Conflict) error
	List(ctx context.Context, statuses []models.ConflictStatus) ([]models.Conflict, error)
	UpdateStatus(ctx context.Context, id string, status models.ConflictStatus, resolvedBy string) error
}

// ConflictService re-derives scheduling conflicts from the committed
// allocation set and manages their triage lifecycle.
type ConflictService struct {
	allocations conflictAllocationLister
	conflicts   conflictStore
	emitter     notify.Emitter
	logger      *zap.Logger
}

// NewConflictService constructs a ConflictService.
func NewConflictService(allocations conflictAllocationLister, conflicts conflictStore, emitter notify.Emitter, logger *zap.Logger) *ConflictService {
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		allocations: allocations,
		conflicts:   conflicts,
		emitter:     emitter,
		logger:      logger,
	}
}

// DetectConflicts scans all non-cancelled allocations, replaces the
// unresolved conflict set with the freshly derived one, and returns it.
// Resolved and ignored conflicts are terminal and untouched.
func (s *ConflictService) DetectConflicts(ctx context.Context) ([]models.Conflict, error) {
	allocations, err := s.allocations.ListNonCancelled(ctx)
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	detected := deriveConflicts(allocations)

	if err := s.conflicts.DeleteUnresolved(ctx); err != nil {
		return nil, apperrors.FromError(err)
	}
	if err := s.conflicts.BulkCreate(ctx, detected); err != nil {
		return nil, apperrors.FromError(err)
	}

	if len(detected) > 0 {
		s.logger.Warn("scheduling conflicts detected", zap.Int("count", len(detected)))
		s.emitter.Emit(notify.Event{
			Type:    notify.EventConflictsDetected,
			Payload: map[string]any{"count": len(detected)},
			Emitted: time.Now().UTC(),
		})
	}
	return detected, nil
}

// List returns conflicts filtered by triage status.
func (s *ConflictService) List(ctx context.Context, statuses []models.ConflictStatus) ([]models.Conflict, error) {
	conflicts, err := s.conflicts.List(ctx, statuses)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return conflicts, nil
}

// Resolve terminally marks a conflict resolved or ignored.
func (s *ConflictService) Resolve(ctx context.Context, id string, status models.ConflictStatus, resolvedBy string) error {
	if status != models.ConflictStatusResolved && status != models.ConflictStatusIgnored {
		return apperrors.Clone(apperrors.ErrValidation, "conflict can only be marked resolved or ignored")
	}
	if err := s.conflicts.UpdateStatus(ctx, id, status, resolvedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "conflict not found")
		}
		return apperrors.FromError(err)
	}
	return nil
}

// deriveConflicts computes the conflict set for an allocation snapshot.
// Allocations are grouped by (faculty, date); overlapping pairs produce one
// high-severity conflict each, a multi-duty group with no overlap produces a
// single medium-severity conflict. Output order is deterministic.
func deriveConflicts(allocations []models.Allocation) []models.Conflict {
	groups := make(map[string][]models.Allocation)
	for _, allocation := range allocations {
		if allocation.Status == models.AllocationStatusCancelled {
			continue
		}
		key := allocation.FacultyID + "|" + dateKey(allocation.Date)
		groups[key] = append(groups[key], allocation)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	var conflicts []models.Conflict
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].StartTime == group[j].StartTime {
				return group[i].ID < group[j].ID
			}
			return group[i].StartTime < group[j].StartTime
		})

		overlapFound := false
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !allocationsOverlap(group[i], group[j]) {
					continue
				}
				overlapFound = true
				conflicts = append(conflicts, models.Conflict{
					ID:        uuid.NewString(),
					Type:      models.ConflictTypeOverlappingTime,
					Severity:  models.ConflictSeverityHigh,
					FacultyID: group[i].FacultyID,
					AllocationIDs: mustJSONIDs(
						group[i].ID,
						group[j].ID,
					),
					Description: fmt.Sprintf("duties %s-%s and %s-%s overlap on %s",
						group[i].StartTime, group[i].EndTime,
						group[j].StartTime, group[j].EndTime,
						dateKey(group[i].Date)),
					SuggestedActions: mustJSONStrings(
						"reassign one of the overlapping duties to another faculty member",
						"reschedule one of the exams",
						"cancel one of the allocations",
					),
					Status:    models.ConflictStatusDetected,
					CreatedAt: now,
					UpdatedAt: now,
				})
			}
		}
		if overlapFound {
			continue
		}

		ids := make([]string, len(group))
		for i, allocation := range group {
			ids[i] = allocation.ID
		}
		conflicts = append(conflicts, models.Conflict{
			ID:            uuid.NewString(),
			Type:          models.ConflictTypeMultipleDutiesSameDay,
			Severity:      models.ConflictSeverityMedium,
			FacultyID:     group[0].FacultyID,
			AllocationIDs: mustJSONIDs(ids...),
			Description: fmt.Sprintf("%d duties assigned on %s without overlap",
				len(group), dateKey(group[0].Date)),
			SuggestedActions: mustJSONStrings(
				"redistribute duties across more faculty",
				"confirm the faculty member accepts multiple duties that day",
			),
			Status:    models.ConflictStatusDetected,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return conflicts
}

// allocationsOverlap compares two duty windows on the same date. Unparsable
// times never overlap; they were rejected upstream and only appear in
// hand-edited rows.
func allocationsOverlap(a, b models.Allocation) bool {
	aStart, errA := parseClock(a.StartTime)
	aEnd, errB := parseClock(a.EndTime)
	bStart, errC := parseClock(b.StartTime)
	bEnd, errD := parseClock(b.EndTime)
	if errA != nil || errB != nil || errC != nil || errD != nil {
		return false
	}
	return rangesOverlap(aStart, aEnd, bStart, bEnd)
}

func mustJSONIDs(ids ...string) types.JSONText {
	return mustJSONStrings(ids...)
}

func mustJSONStrings(values ...string) types.JSONText {
	raw, _ := json.Marshal(values)
	return types.JSONText(raw)
}
