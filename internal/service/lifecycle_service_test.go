package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/invigil-api/internal/dto"
	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/notify"
)

type recordingEmitter struct {
	events []notify.Event
}

func (e *recordingEmitter) Emit(event notify.Event) {
	e.events = append(e.events, event)
}

func (e *recordingEmitter) typesEmitted() []string {
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type)
	}
	return out
}

type lifecycleAllocationStoreStub struct {
	allocation *models.Allocation
	findErr    error

	ackErr        error
	ackRecorded   models.AcknowledgmentStatus
	ackStatus     models.AllocationStatus
	liveErr       error
	liveRecorded  models.LiveStatus
	guardErr      error
	guardedFrom   models.AllocationStatus
	guardedTo     models.AllocationStatus
	created       []models.Allocation
	listed        []models.Allocation
	listedFilter  models.AllocationFilter
	ackCallCount  int
	liveCallCount int
}

func (s *lifecycleAllocationStoreStub) FindByID(_ context.Context, id string) (*models.Allocation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.allocation == nil || s.allocation.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.allocation
	return &clone, nil
}

func (s *lifecycleAllocationStoreStub) List(_ context.Context, filter models.AllocationFilter) ([]models.Allocation, error) {
	s.listedFilter = filter
	return s.listed, nil
}

func (s *lifecycleAllocationStoreStub) BulkCreate(_ context.Context, _ sqlx.ExtContext, allocations []models.Allocation) error {
	s.created = append(s.created, allocations...)
	return nil
}

func (s *lifecycleAllocationStoreStub) UpdateStatusGuarded(_ context.Context, _ string, from, to models.AllocationStatus) error {
	if s.guardErr != nil {
		return s.guardErr
	}
	s.guardedFrom = from
	s.guardedTo = to
	return nil
}

func (s *lifecycleAllocationStoreStub) UpdateAcknowledgment(_ context.Context, _ string, ack models.AcknowledgmentStatus, status models.AllocationStatus) error {
	s.ackCallCount++
	if s.ackErr != nil {
		return s.ackErr
	}
	s.ackRecorded = ack
	s.ackStatus = status
	return nil
}

func (s *lifecycleAllocationStoreStub) UpdateLiveStatus(_ context.Context, _ string, live models.LiveStatus) error {
	s.liveCallCount++
	if s.liveErr != nil {
		return s.liveErr
	}
	s.liveRecorded = live
	return nil
}

type lifecycleReserveStoreStub struct {
	reserves []models.ReservedAllocation
	guardErr error
	consumed string
}

func (s *lifecycleReserveStoreStub) ListByAllocation(_ context.Context, allocationID string) ([]models.ReservedAllocation, error) {
	var out []models.ReservedAllocation
	for _, reserve := range s.reserves {
		if reserve.AllocationID == allocationID {
			out = append(out, reserve)
		}
	}
	return out, nil
}

func (s *lifecycleReserveStoreStub) FindByAllocationAndFaculty(_ context.Context, allocationID, facultyID string) (*models.ReservedAllocation, error) {
	for _, reserve := range s.reserves {
		if reserve.AllocationID == allocationID && reserve.FacultyID == facultyID {
			clone := reserve
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *lifecycleReserveStoreStub) UpdateStatusGuarded(_ context.Context, id string, _, to models.ReserveStatus) error {
	if s.guardErr != nil {
		return s.guardErr
	}
	if to == models.ReserveStatusUsed {
		s.consumed = id
	}
	return nil
}

func pendingAllocation() *models.Allocation {
	examDay := mustDate("2026-09-10")
	room := "room-1"
	return &models.Allocation{
		ID:              "alloc-1",
		ExamID:          "exam-1",
		ClassroomID:     &room,
		FacultyID:       "fac-1",
		Date:            examDay,
		StartTime:       "08:00",
		EndTime:         "12:00",
		Campus:          "MAIN",
		Department:      "CSE",
		Status:          models.AllocationStatusAssigned,
		AckStatus:       models.AckStatusPending,
		AckDeadline:     time.Date(2026, 9, 9, 18, 0, 0, 0, time.UTC),
		LiveStatus:      models.LiveStatusNone,
		LiveWindowStart: time.Date(2026, 9, 10, 7, 30, 0, 0, time.UTC),
		LiveWindowEnd:   time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC),
	}
}

func newLifecycleFixture(allocation *models.Allocation, reserves []models.ReservedAllocation) (*LifecycleService, *lifecycleAllocationStoreStub, *lifecycleReserveStoreStub, *recordingEmitter) {
	allocs := &lifecycleAllocationStoreStub{allocation: allocation}
	reserveStore := &lifecycleReserveStoreStub{reserves: reserves}
	emitter := &recordingEmitter{}
	svc := NewLifecycleService(allocs, reserveStore, emitter, nil, nil)
	return svc, allocs, reserveStore, emitter
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.FromError(err).Code
}

func TestAcknowledgeConfirmsDuty(t *testing.T) {
	svc, allocs, _, emitter := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }

	updated, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-1", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	require.NoError(t, err)
	assert.Equal(t, models.AckStatusAcknowledged, updated.AckStatus)
	assert.Equal(t, models.AllocationStatusConfirmed, updated.Status)
	assert.Equal(t, models.AllocationStatusConfirmed, allocs.ackStatus)
	assert.Empty(t, emitter.events)
}

func TestAcknowledgeUnavailableKeepsAssignedAndNotifies(t *testing.T) {
	svc, allocs, _, emitter := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }

	updated, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-1", dto.AcknowledgeRequest{Status: "UNAVAILABLE"})
	require.NoError(t, err)
	assert.Equal(t, models.AckStatusUnavailable, updated.AckStatus)
	assert.Equal(t, models.AllocationStatusAssigned, updated.Status, "declining does not release the duty by itself")
	assert.Equal(t, models.AllocationStatusAssigned, allocs.ackStatus)
	assert.Equal(t, []string{notify.EventFacultyUnavailable}, emitter.typesEmitted())
}

func TestAcknowledgeRejectsAfterDeadline(t *testing.T) {
	svc, allocs, _, _ := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 18, 0, 1, 0, time.UTC) }

	_, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-1", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	assert.Equal(t, apperrors.ErrWindowClosed.Code, errorCode(t, err))
	assert.Zero(t, allocs.ackCallCount)
}

func TestAcknowledgeRejectsOtherFaculty(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }

	_, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-2", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	assert.Equal(t, apperrors.ErrForbidden.Code, errorCode(t, err))
}

func TestAcknowledgeAdminBypassesOwnerCheck(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }

	_, err := svc.Acknowledge(context.Background(), "alloc-1", "", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	assert.NoError(t, err)
}

func TestAcknowledgeRejectsNonPendingDuty(t *testing.T) {
	allocation := pendingAllocation()
	allocation.Status = models.AllocationStatusConfirmed
	svc, _, _, _ := newLifecycleFixture(allocation, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }

	_, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-1", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
}

func TestAcknowledgeLostRaceSurfacesConflict(t *testing.T) {
	svc, allocs, _, _ := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }
	allocs.ackErr = sql.ErrNoRows

	_, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-1", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
}

func TestAcknowledgeValidatesStatus(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), nil)

	_, err := svc.Acknowledge(context.Background(), "alloc-1", "fac-1", dto.AcknowledgeRequest{Status: "MAYBE"})
	assert.Equal(t, apperrors.ErrValidation.Code, errorCode(t, err))
}

func TestAcknowledgeUnknownAllocation(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), nil)

	_, err := svc.Acknowledge(context.Background(), "missing", "fac-1", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	assert.Equal(t, apperrors.ErrNotFound.Code, errorCode(t, err))
}

func TestReportLiveStatusInsideWindow(t *testing.T) {
	svc, allocs, _, emitter := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 10, 7, 45, 0, 0, time.UTC) }

	updated, err := svc.ReportLiveStatus(context.Background(), "alloc-1", "fac-1", dto.LiveStatusRequest{Status: "PRESENT"})
	require.NoError(t, err)
	assert.Equal(t, models.LiveStatusPresent, updated.LiveStatus)
	assert.Equal(t, models.LiveStatusPresent, allocs.liveRecorded)
	assert.Empty(t, emitter.events)
}

func TestReportLiveStatusUnableToReachNotifies(t *testing.T) {
	svc, _, _, emitter := newLifecycleFixture(pendingAllocation(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 10, 7, 45, 0, 0, time.UTC) }

	_, err := svc.ReportLiveStatus(context.Background(), "alloc-1", "fac-1", dto.LiveStatusRequest{Status: "UNABLE_TO_REACH"})
	require.NoError(t, err)
	assert.Equal(t, []string{notify.EventFacultyUnableReach}, emitter.typesEmitted())
}

func TestReportLiveStatusOutsideWindow(t *testing.T) {
	svc, allocs, _, _ := newLifecycleFixture(pendingAllocation(), nil)

	svc.now = func() time.Time { return time.Date(2026, 9, 10, 7, 0, 0, 0, time.UTC) }
	_, err := svc.ReportLiveStatus(context.Background(), "alloc-1", "fac-1", dto.LiveStatusRequest{Status: "PRESENT"})
	assert.Equal(t, apperrors.ErrWindowClosed.Code, errorCode(t, err))

	svc.now = func() time.Time { return time.Date(2026, 9, 10, 8, 0, 1, 0, time.UTC) }
	_, err = svc.ReportLiveStatus(context.Background(), "alloc-1", "fac-1", dto.LiveStatusRequest{Status: "PRESENT"})
	assert.Equal(t, apperrors.ErrWindowClosed.Code, errorCode(t, err))
	assert.Zero(t, allocs.liveCallCount)
}

func TestReportLiveStatusInactiveDuty(t *testing.T) {
	allocation := pendingAllocation()
	allocation.Status = models.AllocationStatusReplaced
	svc, _, _, _ := newLifecycleFixture(allocation, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 10, 7, 45, 0, 0, time.UTC) }

	_, err := svc.ReportLiveStatus(context.Background(), "alloc-1", "fac-1", dto.LiveStatusRequest{Status: "PRESENT"})
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
}

func TestActivateReserveReplacesPrimary(t *testing.T) {
	reserves := []models.ReservedAllocation{
		{ID: "res-1", AllocationID: "alloc-1", FacultyID: "fac-9", Priority: 1, Status: models.ReserveStatusAvailable},
	}
	svc, allocs, reserveStore, emitter := newLifecycleFixture(pendingAllocation(), reserves)
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC) }

	replacement, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	require.NoError(t, err)

	assert.Equal(t, "res-1", reserveStore.consumed)
	assert.Equal(t, models.AllocationStatusAssigned, allocs.guardedFrom)
	assert.Equal(t, models.AllocationStatusReplaced, allocs.guardedTo)

	require.Len(t, allocs.created, 1)
	assert.Equal(t, replacement.ID, allocs.created[0].ID)
	assert.Equal(t, "fac-9", replacement.FacultyID)
	assert.Equal(t, "exam-1", replacement.ExamID)
	require.NotNil(t, replacement.ClassroomID)
	assert.Equal(t, "room-1", *replacement.ClassroomID)
	assert.Equal(t, "08:00", replacement.StartTime)
	assert.Equal(t, models.AllocationStatusAssigned, replacement.Status)
	assert.Equal(t, models.AckStatusPending, replacement.AckStatus, "replacement runs its own acknowledgment cycle")
	assert.NotEqual(t, "alloc-1", replacement.ID)
	assert.True(t, replacement.AckDeadline.Equal(time.Date(2026, 9, 9, 18, 0, 0, 0, time.UTC)),
		"a still-open deadline carries over unchanged")

	assert.Equal(t, []string{notify.EventFacultyReplaced}, emitter.typesEmitted())
}

func TestActivateReserveAfterDeadlineGrantsFreshAckWindow(t *testing.T) {
	reserves := []models.ReservedAllocation{
		{ID: "res-1", AllocationID: "alloc-1", FacultyID: "fac-9", Priority: 1, Status: models.ReserveStatusAvailable},
	}
	svc, allocs, _, _ := newLifecycleFixture(pendingAllocation(), reserves)
	// Exam-morning activation, hours after the original previous-day deadline.
	activatedAt := time.Date(2026, 9, 10, 7, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return activatedAt }

	replacement, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	require.NoError(t, err)

	assert.True(t, replacement.AckDeadline.After(activatedAt),
		"the incoming faculty member must still be able to acknowledge")
	examStart := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	assert.False(t, replacement.AckDeadline.After(examStart), "deadline never moves past exam start")

	// The replacement duty accepts an acknowledgment inside the fresh window.
	allocs.allocation = replacement
	svc.now = func() time.Time { return activatedAt.Add(10 * time.Minute) }
	updated, err := svc.Acknowledge(context.Background(), replacement.ID, "fac-9", dto.AcknowledgeRequest{Status: "ACKNOWLEDGED"})
	require.NoError(t, err)
	assert.Equal(t, models.AllocationStatusConfirmed, updated.Status)
}

func TestActivateReserveFarAheadCapsGraceAtOriginalDeadline(t *testing.T) {
	reserves := []models.ReservedAllocation{
		{ID: "res-1", AllocationID: "alloc-1", FacultyID: "fac-9", Status: models.ReserveStatusAvailable},
	}
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), reserves)
	// Activation right at the original deadline: the grace window applies but
	// stays clear of exam start.
	svc.now = func() time.Time { return time.Date(2026, 9, 9, 18, 0, 0, 0, time.UTC) }

	replacement, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	require.NoError(t, err)
	assert.True(t, replacement.AckDeadline.Equal(time.Date(2026, 9, 9, 20, 0, 0, 0, time.UTC)))
}

func TestActivateReserveUnknownReserve(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), nil)

	_, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	assert.Equal(t, apperrors.ErrNotFound.Code, errorCode(t, err))
}

func TestActivateReserveAlreadyUsed(t *testing.T) {
	reserves := []models.ReservedAllocation{
		{ID: "res-1", AllocationID: "alloc-1", FacultyID: "fac-9", Status: models.ReserveStatusUsed},
	}
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), reserves)

	_, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
}

func TestActivateReserveLostRace(t *testing.T) {
	reserves := []models.ReservedAllocation{
		{ID: "res-1", AllocationID: "alloc-1", FacultyID: "fac-9", Status: models.ReserveStatusAvailable},
	}
	svc, allocs, reserveStore, _ := newLifecycleFixture(pendingAllocation(), reserves)
	reserveStore.guardErr = sql.ErrNoRows

	_, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
	assert.Empty(t, allocs.created, "losing the reserve race creates nothing")
}

func TestActivateReserveRejectsReplacedDuty(t *testing.T) {
	allocation := pendingAllocation()
	allocation.Status = models.AllocationStatusReplaced
	svc, _, _, _ := newLifecycleFixture(allocation, nil)

	_, err := svc.ActivateReserve(context.Background(), "alloc-1", dto.ActivateReserveRequest{ReserveFacultyID: "fac-9"})
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
}

func TestCancelEmitsEvent(t *testing.T) {
	svc, allocs, _, emitter := newLifecycleFixture(pendingAllocation(), nil)

	require.NoError(t, svc.Cancel(context.Background(), "alloc-1"))
	assert.Equal(t, models.AllocationStatusCancelled, allocs.guardedTo)
	assert.Equal(t, []string{notify.EventAllocationCancelled}, emitter.typesEmitted())
}

func TestCancelAlreadyCancelled(t *testing.T) {
	allocation := pendingAllocation()
	allocation.Status = models.AllocationStatusCancelled
	svc, _, _, _ := newLifecycleFixture(allocation, nil)

	err := svc.Cancel(context.Background(), "alloc-1")
	assert.Equal(t, apperrors.ErrConflict.Code, errorCode(t, err))
}

func TestListReservesRequiresAllocation(t *testing.T) {
	reserves := []models.ReservedAllocation{
		{ID: "res-1", AllocationID: "alloc-1", FacultyID: "fac-9", Priority: 1, Status: models.ReserveStatusAvailable},
		{ID: "res-2", AllocationID: "alloc-2", FacultyID: "fac-8", Priority: 1, Status: models.ReserveStatusAvailable},
	}
	svc, _, _, _ := newLifecycleFixture(pendingAllocation(), reserves)

	listed, err := svc.ListReserves(context.Background(), "alloc-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "res-1", listed[0].ID)

	_, err = svc.ListReserves(context.Background(), "alloc-9")
	assert.Equal(t, apperrors.ErrNotFound.Code, errorCode(t, err))
}
