package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
)

type conflictAllocationListerStub struct {
	allocations []models.Allocation
	err         error
}

func (s *conflictAllocationListerStub) ListNonCancelled(context.Context) ([]models.Allocation, error) {
	return s.allocations, s.err
}

type conflictStoreStub struct {
	stored       []models.Conflict
	deleted      bool
	updateErr    error
	updatedID    string
	updatedState models.ConflictStatus
	resolvedBy   string
}

func (s *conflictStoreStub) DeleteUnresolved(context.Context) error {
	s.deleted = true
	return nil
}

func (s *conflictStoreStub) BulkCreate(_ context.Context, conflicts []models.Conflict) error {
	s.stored = append(s.stored, conflicts...)
	return nil
}

func (s *conflictStoreStub) List(_ context.Context, statuses []models.ConflictStatus) ([]models.Conflict, error) {
	if len(statuses) == 0 {
		return s.stored, nil
	}
	var out []models.Conflict
	for _, conflict := range s.stored {
		for _, status := range statuses {
			if conflict.Status == status {
				out = append(out, conflict)
			}
		}
	}
	return out, nil
}

func (s *conflictStoreStub) UpdateStatus(_ context.Context, id string, status models.ConflictStatus, resolvedBy string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updatedID = id
	s.updatedState = status
	s.resolvedBy = resolvedBy
	return nil
}

func allocationIDsOf(t *testing.T, conflict models.Conflict) []string {
	t.Helper()
	var ids []string
	require.NoError(t, json.Unmarshal(conflict.AllocationIDs, &ids))
	return ids
}

func TestDeriveConflictsOverlappingPair(t *testing.T) {
	conflicts := deriveConflicts([]models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
		mkCommitted("alloc-2", "fac-1", "2026-09-10", "10:00", "13:00"),
		mkCommitted("alloc-3", "fac-2", "2026-09-10", "08:00", "12:00"),
	})

	require.Len(t, conflicts, 1)
	conflict := conflicts[0]
	assert.Equal(t, models.ConflictTypeOverlappingTime, conflict.Type)
	assert.Equal(t, models.ConflictSeverityHigh, conflict.Severity)
	assert.Equal(t, "fac-1", conflict.FacultyID)
	assert.Equal(t, models.ConflictStatusDetected, conflict.Status)
	assert.Equal(t, []string{"alloc-1", "alloc-2"}, allocationIDsOf(t, conflict))
	assert.NotEmpty(t, conflict.Description)
}

func TestDeriveConflictsEveryOverlappingPairReported(t *testing.T) {
	conflicts := deriveConflicts([]models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
		mkCommitted("alloc-2", "fac-1", "2026-09-10", "09:00", "11:00"),
		mkCommitted("alloc-3", "fac-1", "2026-09-10", "10:00", "13:00"),
	})

	require.Len(t, conflicts, 3, "three duties pairwise overlapping yield three conflicts")
	for _, conflict := range conflicts {
		assert.Equal(t, models.ConflictTypeOverlappingTime, conflict.Type)
		assert.Len(t, allocationIDsOf(t, conflict), 2)
	}
}

func TestDeriveConflictsMultipleDutiesWithoutOverlap(t *testing.T) {
	conflicts := deriveConflicts([]models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
		mkCommitted("alloc-2", "fac-1", "2026-09-10", "12:00", "18:00"),
	})

	require.Len(t, conflicts, 1)
	conflict := conflicts[0]
	assert.Equal(t, models.ConflictTypeMultipleDutiesSameDay, conflict.Type)
	assert.Equal(t, models.ConflictSeverityMedium, conflict.Severity)
	assert.Equal(t, []string{"alloc-1", "alloc-2"}, allocationIDsOf(t, conflict))
}

func TestDeriveConflictsIgnoresCancelledAndOtherDays(t *testing.T) {
	cancelled := mkCommitted("alloc-2", "fac-1", "2026-09-10", "08:00", "12:00")
	cancelled.Status = models.AllocationStatusCancelled

	conflicts := deriveConflicts([]models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
		cancelled,
		mkCommitted("alloc-3", "fac-1", "2026-09-11", "08:00", "12:00"),
	})
	assert.Empty(t, conflicts)
}

func TestDeriveConflictsDeterministicOrder(t *testing.T) {
	input := []models.Allocation{
		mkCommitted("alloc-4", "fac-2", "2026-09-10", "08:00", "12:00"),
		mkCommitted("alloc-3", "fac-2", "2026-09-10", "10:00", "13:00"),
		mkCommitted("alloc-2", "fac-1", "2026-09-10", "10:00", "13:00"),
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
	}

	first := deriveConflicts(input)
	require.Len(t, first, 2)
	assert.Equal(t, "fac-1", first[0].FacultyID)
	assert.Equal(t, "fac-2", first[1].FacultyID)
	assert.Equal(t, []string{"alloc-1", "alloc-2"}, allocationIDsOf(t, first[0]))
	assert.Equal(t, []string{"alloc-3", "alloc-4"}, allocationIDsOf(t, first[1]))
}

func TestConflictServiceDetectReplacesUnresolved(t *testing.T) {
	allocations := &conflictAllocationListerStub{allocations: []models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
		mkCommitted("alloc-2", "fac-1", "2026-09-10", "10:00", "13:00"),
	}}
	store := &conflictStoreStub{}
	svc := NewConflictService(allocations, store, nil, nil)

	detected, err := svc.DetectConflicts(context.Background())
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.True(t, store.deleted, "unresolved conflicts are replaced, not appended")
	require.Len(t, store.stored, 1)
	assert.Equal(t, detected[0].ID, store.stored[0].ID)
}

func TestConflictServiceDetectCleanSchedule(t *testing.T) {
	allocations := &conflictAllocationListerStub{allocations: []models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
	}}
	store := &conflictStoreStub{}
	svc := NewConflictService(allocations, store, nil, nil)

	detected, err := svc.DetectConflicts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, detected)
	assert.True(t, store.deleted)
	assert.Empty(t, store.stored)
}

func TestConflictServiceResolve(t *testing.T) {
	store := &conflictStoreStub{}
	svc := NewConflictService(&conflictAllocationListerStub{}, store, nil, nil)

	err := svc.Resolve(context.Background(), "conf-1", models.ConflictStatusResolved, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "conf-1", store.updatedID)
	assert.Equal(t, models.ConflictStatusResolved, store.updatedState)
	assert.Equal(t, "acct-1", store.resolvedBy)

	err = svc.Resolve(context.Background(), "conf-1", models.ConflictStatusDetected, "acct-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation.Code, apperrors.FromError(err).Code)
}

func TestConflictServiceResolveNotFound(t *testing.T) {
	store := &conflictStoreStub{updateErr: sql.ErrNoRows}
	svc := NewConflictService(&conflictAllocationListerStub{}, store, nil, nil)

	err := svc.Resolve(context.Background(), "missing", models.ConflictStatusIgnored, "acct-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound.Code, apperrors.FromError(err).Code)
}
