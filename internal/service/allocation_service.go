package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusops/invigil-api/internal/dto"
	"github.com/campusops/invigil-api/internal/models"
	"github.com/campusops/invigil-api/pkg/config"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/lock"
	"github.com/campusops/invigil-api/pkg/notify"
)

// invigilatorsPerRoom is fixed: every allocated room gets exactly two
// distinct invigilators or fails outright.
const invigilatorsPerRoom = 2

const maxReservesPerAllocation = 2

type examFetcher interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error)
	UpdateStatusBatch(ctx context.Context, exec sqlx.ExtContext, ids []string, status models.ExamStatus) error
}

type classroomLister interface {
	ListActive(ctx context.Context, campus string) ([]models.Classroom, error)
}

type facultyLister interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error)
}

type allocationStore interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	ListNonCancelled(ctx context.Context) ([]models.Allocation, error)
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, allocations []models.Allocation) error
}

type reserveStore interface {
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, reserves []models.ReservedAllocation) error
}

type policyReader interface {
	GetActive(ctx context.Context) (*models.AllocationPolicy, error)
}

type conflictDetector interface {
	DetectConflicts(ctx context.Context) ([]models.Conflict, error)
}

// runObserver receives the outcome of every allocation run, preview included.
type runObserver interface {
	ObserveAllocationRun(preview bool, result *dto.AllocationRunResult)
}

// AllocationService drives the full allocation pipeline: session grouping,
// candidate scoring, room assignment, reserve selection and conflict
// detection. Runs are strictly sequential; a scope lock keeps concurrent
// allocate calls over overlapping scope from double-booking faculty.
type AllocationService struct {
	exams      examFetcher
	classrooms classroomLister
	faculty    facultyLister
	allocs     allocationStore
	reserves   reserveStore
	policies   policyReader
	detector   conflictDetector
	locker     lock.Locker
	emitter    notify.Emitter
	observer   runObserver
	validate   *validator.Validate
	logger     *zap.Logger
	tieBreak   TieBreaker
	cfg        config.AllocatorConfig
}

// NewAllocationService constructs an AllocationService.
func NewAllocationService(
	exams examFetcher,
	classrooms classroomLister,
	faculty facultyLister,
	allocs allocationStore,
	reserves reserveStore,
	policies policyReader,
	detector conflictDetector,
	locker lock.Locker,
	emitter notify.Emitter,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.AllocatorConfig,
) *AllocationService {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunLockTTL <= 0 {
		cfg.RunLockTTL = 5 * time.Minute
	}
	if cfg.AckDeadlineHour <= 0 || cfg.AckDeadlineHour > 23 {
		cfg.AckDeadlineHour = 18
	}
	if cfg.LiveWindowLead <= 0 {
		cfg.LiveWindowLead = 30 * time.Minute
	}
	return &AllocationService{
		exams:      exams,
		classrooms: classrooms,
		faculty:    faculty,
		allocs:     allocs,
		reserves:   reserves,
		policies:   policies,
		detector:   detector,
		locker:     locker,
		emitter:    emitter,
		validate:   validate,
		logger:     logger,
		tieBreak:   NewTieBreaker(cfg.DeterministicTieBreak),
		cfg:        cfg,
	}
}

// SetObserver attaches an optional run observer, typically the metrics layer.
func (s *AllocationService) SetObserver(observer runObserver) {
	s.observer = observer
}

// SetTieBreaker overrides the tie-break source. Tests use HashTieBreaker to
// compare preview and allocate outcomes.
func (s *AllocationService) SetTieBreaker(tb TieBreaker) {
	if tb != nil {
		s.tieBreak = tb
	}
}

// Allocate runs the allocation pipeline and persists the outcome. Only one
// run per scope may execute at a time.
func (s *AllocationService) Allocate(ctx context.Context, req dto.AllocationRequest) (*dto.AllocationRunResult, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid allocation request")
	}

	scope := runScope(req)
	acquired, err := s.locker.Acquire(ctx, scope, s.cfg.RunLockTTL)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	if !acquired {
		return nil, apperrors.ErrRunInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), scope); err != nil {
			s.logger.Warn("failed to release run lock", zap.String("scope", scope), zap.Error(err))
		}
	}()

	result, err := s.run(ctx, req, false)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(notify.Event{
		ID:   uuid.NewString(),
		Type: notify.EventAllocationComplete,
		Payload: map[string]any{
			"scope":              scope,
			"sessionsProcessed":  result.Summary.SessionsProcessed,
			"sessionsSucceeded":  result.Summary.SessionsSucceeded,
			"allocationsCreated": result.Summary.AllocationsCreated,
		},
		Emitted: time.Now().UTC(),
	})
	return result, nil
}

// Preview performs the identical computation without persisting anything.
// Conflicts are derived over the committed snapshot plus the simulated
// allocations.
func (s *AllocationService) Preview(ctx context.Context, req dto.AllocationRequest) (*dto.AllocationRunResult, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid allocation request")
	}
	return s.run(ctx, req, true)
}

// DetectConflicts runs the conflict detector standalone against persisted
// state.
func (s *AllocationService) DetectConflicts(ctx context.Context) ([]models.Conflict, error) {
	return s.detector.DetectConflicts(ctx)
}

// runState carries the mutable pieces of one allocation run.
type runState struct {
	policy       models.AllocationPolicy
	rooms        []models.Classroom
	pool         []models.Faculty
	committed    []models.Allocation
	tracker      *workloadTracker
	created      []models.Allocation
	reserveCount int
	preview      bool
}

func (s *AllocationService) run(ctx context.Context, req dto.AllocationRequest, preview bool) (*dto.AllocationRunResult, error) {
	exams, err := s.resolveExams(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &dto.AllocationRunResult{Preview: preview, Conflicts: []models.Conflict{}}
	if len(exams) == 0 {
		result.Message = "no exams awaiting allocation for the requested scope"
		s.observe(preview, result)
		return result, nil
	}

	state := &runState{preview: preview, tracker: newWorkloadTracker()}

	state.policy, err = s.loadPolicy(ctx)
	if err != nil {
		return nil, err
	}

	state.rooms, err = s.classrooms.ListActive(ctx, req.Campus)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	if len(state.rooms) == 0 {
		result.Message = "no active classrooms available for allocation"
		s.observe(preview, result)
		return result, nil
	}

	active := true
	state.pool, err = s.faculty.List(ctx, models.FacultyFilter{Campus: req.Campus, Active: &active})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	state.committed, err = s.allocs.ListNonCancelled(ctx)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	state.tracker.Seed(state.committed)

	sessions := groupSessions(exams)
	for _, session := range sessions {
		outcome, err := s.allocateSession(ctx, session, state)
		if err != nil {
			return nil, err
		}
		result.Sessions = append(result.Sessions, outcome)
		result.Summary.SessionsProcessed++
		if outcome.Success {
			result.Summary.SessionsSucceeded++
		}
		result.Summary.RoomsAllocated += outcome.RoomsAllocated
		result.Summary.AllocationsCreated += outcome.AllocationsCreated
	}
	result.Summary.ReservesSelected = state.reserveCount

	conflicts, err := s.finishConflicts(ctx, state)
	if err != nil {
		return nil, err
	}
	result.Conflicts = conflicts
	result.Summary.ConflictsDetected = len(conflicts)

	result.Success = result.Summary.SessionsSucceeded > 0
	result.Message = fmt.Sprintf("%d of %d sessions allocated, %d invigilator duties created",
		result.Summary.SessionsSucceeded, result.Summary.SessionsProcessed, result.Summary.AllocationsCreated)

	s.observe(preview, result)
	return result, nil
}

// resolveExams loads the run's target exams. Explicit IDs are validated
// strictly; broad selection silently skips rows that are not allocatable.
func (s *AllocationService) resolveExams(ctx context.Context, req dto.AllocationRequest) ([]models.Exam, error) {
	if len(req.ExamIDs) > 0 {
		exams, err := s.exams.List(ctx, models.ExamFilter{
			IDs:        req.ExamIDs,
			Campus:     req.Campus,
			Department: req.Department,
		})
		if err != nil {
			return nil, apperrors.FromError(err)
		}
		found := make(map[string]bool, len(exams))
		for _, exam := range exams {
			found[exam.ID] = true
			if exam.Status != models.ExamStatusScheduled {
				return nil, apperrors.Clone(apperrors.ErrValidation,
					fmt.Sprintf("exam %s is not awaiting allocation (status %s)", exam.ID, exam.Status))
			}
			if err := validateExamTimes(exam); err != nil {
				return nil, err
			}
		}
		for _, id := range req.ExamIDs {
			if !found[id] {
				return nil, apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("exam %s not found in the requested scope", id))
			}
		}
		return exams, nil
	}

	exams, err := s.exams.List(ctx, models.ExamFilter{
		Campus:     req.Campus,
		Department: req.Department,
		Status:     models.ExamStatusScheduled,
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	allocatable := exams[:0]
	for _, exam := range exams {
		if err := validateExamTimes(exam); err != nil {
			s.logger.Warn("skipping exam with invalid schedule", zap.String("exam_id", exam.ID), zap.Error(err))
			continue
		}
		allocatable = append(allocatable, exam)
	}
	return allocatable, nil
}

func validateExamTimes(exam models.Exam) error {
	if exam.Date.IsZero() {
		return apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("exam %s has no date", exam.ID))
	}
	start, err := parseClock(exam.StartTime)
	if err != nil {
		return apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("exam %s has an invalid start time", exam.ID))
	}
	end, err := parseClock(exam.EndTime)
	if err != nil {
		return apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("exam %s has an invalid end time", exam.ID))
	}
	if end <= start {
		return apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("exam %s ends before it starts", exam.ID))
	}
	return nil
}

func (s *AllocationService) loadPolicy(ctx context.Context) (models.AllocationPolicy, error) {
	policy, err := s.policies.GetActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultAllocationPolicy(), nil
		}
		return models.AllocationPolicy{}, apperrors.FromError(err)
	}
	return *policy, nil
}

type scoredCandidate struct {
	faculty models.Faculty
	score   float64
}

// allocateSession fills every room of one session with two distinct
// invigilators and selects reserves for every duty created. A failed room
// creates no allocations at all; a failed session never aborts the run.
func (s *AllocationService) allocateSession(ctx context.Context, session examSession, state *runState) (dto.SessionResult, error) {
	outcome := dto.SessionResult{
		Date:      session.Date,
		TimeBand:  session.Band,
		StartTime: session.StartTime,
		EndTime:   session.EndTime,
	}
	for _, exam := range session.Exams {
		outcome.ExamIDs = append(outcome.ExamIDs, exam.ID)
	}

	sctx := sessionContext{
		Date:       session.Exams[0].Date,
		StartMin:   session.StartMin,
		EndMin:     session.EndMin,
		Hours:      session.Hours(),
		Campus:     session.Exams[0].Campus,
		Department: session.Exams[0].Department,
		Key:        session.Key(),
	}

	pool := s.eligiblePool(session, sctx, state)
	needed := invigilatorsPerRoom * len(state.rooms)
	if len(pool) < needed {
		outcome.Message = fmt.Sprintf("insufficient eligible faculty: %d available, %d required for %d rooms",
			len(pool), needed, len(state.rooms))
		return outcome, nil
	}

	ranked := s.rankCandidates(pool, sctx, state)

	isLab := session.Type == models.ExamTypeLabs
	var courseNames map[string]bool
	if isLab {
		courseNames = session.CourseNames()
	}

	used := make(map[string]bool)
	var sessionAllocs []models.Allocation
	for i, room := range state.rooms {
		exam := session.Exams[i%len(session.Exams)]

		var first *models.Faculty
		if isLab {
			first = nextCandidate(ranked, used, sctx, state, courseNames)
		}
		if first == nil {
			first = nextCandidate(ranked, used, sctx, state, nil)
		}
		var second *models.Faculty
		if first != nil {
			reserved := map[string]bool{first.ID: true}
			for id := range used {
				reserved[id] = true
			}
			second = nextCandidate(ranked, reserved, sctx, state, nil)
		}
		if first == nil || second == nil {
			outcome.FailedRooms = append(outcome.FailedRooms, dto.RoomFailure{
				ClassroomID: room.ID,
				RoomNumber:  room.RoomNumber,
				Reason:      "eligible faculty pool exhausted before the room could be filled",
			})
			continue
		}

		for _, member := range []*models.Faculty{first, second} {
			used[member.ID] = true
			state.tracker.Record(member.ID, sctx.Date, session.StartMin, session.EndMin)
			sessionAllocs = append(sessionAllocs, s.buildAllocation(exam, room, session, *member))
		}
		outcome.RoomsAllocated++
	}

	outcome.AllocationsCreated = len(sessionAllocs)
	outcome.Allocations = sessionAllocs
	outcome.Success = len(outcome.FailedRooms) == 0 && outcome.RoomsAllocated == len(state.rooms)
	if !outcome.Success && outcome.Message == "" {
		outcome.Message = fmt.Sprintf("%d of %d rooms could not be filled", len(outcome.FailedRooms), len(state.rooms))
	}

	sessionReserves := s.selectReserves(sessionAllocs, sctx, used, state)

	if !state.preview {
		if err := s.persistSession(ctx, session, sessionAllocs, sessionReserves, outcome.Success); err != nil {
			return outcome, err
		}
		for _, allocation := range sessionAllocs {
			s.emitter.Emit(notify.Event{
				ID:   uuid.NewString(),
				Type: notify.EventNewAllocation,
				Payload: map[string]any{
					"allocationId": allocation.ID,
					"facultyId":    allocation.FacultyID,
					"examId":       allocation.ExamID,
					"date":         allocation.Date.Format("2006-01-02"),
				},
				Emitted: time.Now().UTC(),
			})
		}
	}
	state.created = append(state.created, sessionAllocs...)
	state.reserveCount += len(sessionReserves)

	s.logger.Info("session allocated",
		zap.String("session", session.Key()),
		zap.Bool("success", outcome.Success),
		zap.Int("rooms", outcome.RoomsAllocated),
		zap.Int("allocations", outcome.AllocationsCreated),
		zap.Bool("preview", state.preview))
	return outcome, nil
}

// eligiblePool applies the cross-run time-conflict check: a candidate with a
// committed duty overlapping the session window on the same date is out,
// regardless of score. This inspects committed data only; in-run effects are
// carried by the workload tracker.
func (s *AllocationService) eligiblePool(session examSession, sctx sessionContext, state *runState) []models.Faculty {
	busy := make(map[string]bool)
	for _, allocation := range state.committed {
		if dateKey(allocation.Date) != session.Date {
			continue
		}
		start, errStart := parseClock(allocation.StartTime)
		end, errEnd := parseClock(allocation.EndTime)
		if errStart != nil || errEnd != nil {
			continue
		}
		if rangesOverlap(start, end, sctx.StartMin, sctx.EndMin) {
			busy[allocation.FacultyID] = true
		}
	}

	pool := make([]models.Faculty, 0, len(state.pool))
	for _, f := range state.pool {
		if busy[f.ID] {
			continue
		}
		pool = append(pool, f)
	}
	return pool
}

// rankCandidates scores the pool once per session and orders it best first.
// Equal scores fall back to faculty ID so the order is total.
func (s *AllocationService) rankCandidates(pool []models.Faculty, sctx sessionContext, state *runState) []scoredCandidate {
	ranked := make([]scoredCandidate, 0, len(pool))
	for _, f := range pool {
		ranked = append(ranked, scoredCandidate{
			faculty: f,
			score:   scoreFaculty(f, sctx, state.tracker, state.policy, s.tieBreak),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].faculty.ID < ranked[j].faculty.ID
		}
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

// nextCandidate walks the ranking best first and returns the first unused
// candidate that passes the availability filter. A non-nil subjects set
// additionally requires a taught-subject intersection, used for the lab
// first slot.
func nextCandidate(ranked []scoredCandidate, used map[string]bool, sctx sessionContext, state *runState, subjects map[string]bool) *models.Faculty {
	for i := range ranked {
		candidate := &ranked[i].faculty
		if used[candidate.ID] {
			continue
		}
		if subjects != nil && !teachesAny(*candidate, subjects) {
			continue
		}
		if !passesAvailability(*candidate, sctx, state.tracker, state.policy) {
			continue
		}
		return candidate
	}
	return nil
}

func teachesAny(f models.Faculty, subjects map[string]bool) bool {
	for subject := range facultySubjects(f) {
		if subjects[subject] {
			return true
		}
	}
	return false
}

func (s *AllocationService) buildAllocation(exam models.Exam, room models.Classroom, session examSession, f models.Faculty) models.Allocation {
	roomID := room.ID
	start := atClock(exam.Date, session.StartMin)
	return models.Allocation{
		ID:              uuid.NewString(),
		ExamID:          exam.ID,
		ClassroomID:     &roomID,
		FacultyID:       f.ID,
		Date:            exam.Date,
		StartTime:       session.StartTime,
		EndTime:         session.EndTime,
		Campus:          exam.Campus,
		Department:      exam.Department,
		Status:          models.AllocationStatusAssigned,
		AckStatus:       models.AckStatusPending,
		AckDeadline:     atClock(exam.Date.AddDate(0, 0, -1), s.cfg.AckDeadlineHour*60),
		LiveStatus:      models.LiveStatusNone,
		LiveWindowStart: start.Add(-s.cfg.LiveWindowLead),
		LiveWindowEnd:   start,
	}
}

// selectReserves picks up to two backups per duty: same campus, active, not
// a primary in this session, biased toward under-utilized faculty. Reserves
// do not consume tracker workload.
func (s *AllocationService) selectReserves(allocations []models.Allocation, sctx sessionContext, primaries map[string]bool, state *runState) []models.ReservedAllocation {
	var reserves []models.ReservedAllocation
	for _, allocation := range allocations {
		candidates := make([]scoredCandidate, 0, len(state.pool))
		for _, f := range state.pool {
			if primaries[f.ID] {
				continue
			}
			if allocation.Campus != "" && f.Campus != allocation.Campus {
				continue
			}
			score := scoreFaculty(f, sctx, state.tracker, state.policy, s.tieBreak)
			switch duties := state.tracker.Duties(f.ID); {
			case duties == 0:
				score += reserveZeroDutyBonus
			case duties <= 2:
				score += reserveLightDutyBonus
			}
			candidates = append(candidates, scoredCandidate{faculty: f, score: score})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score == candidates[j].score {
				return candidates[i].faculty.ID < candidates[j].faculty.ID
			}
			return candidates[i].score > candidates[j].score
		})

		priority := 1
		for i := range candidates {
			if priority > maxReservesPerAllocation {
				break
			}
			if !passesAvailability(candidates[i].faculty, sctx, state.tracker, state.policy) {
				continue
			}
			reserves = append(reserves, models.ReservedAllocation{
				ID:           uuid.NewString(),
				ExamID:       allocation.ExamID,
				AllocationID: allocation.ID,
				FacultyID:    candidates[i].faculty.ID,
				Priority:     priority,
				Status:       models.ReserveStatusAvailable,
			})
			priority++
		}
	}
	return reserves
}

// persistSession commits one session's allocations, reserves and exam status
// flips in a single transaction. Exams only move to allocated when every
// room of the session filled.
func (s *AllocationService) persistSession(ctx context.Context, session examSession, allocations []models.Allocation, reserves []models.ReservedAllocation, fullSuccess bool) error {
	if len(allocations) == 0 {
		return nil
	}
	tx, err := s.allocs.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.FromError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.allocs.BulkCreate(ctx, tx, allocations); err != nil {
		return apperrors.FromError(err)
	}
	if err = s.reserves.BulkCreate(ctx, tx, reserves); err != nil {
		return apperrors.FromError(err)
	}
	if fullSuccess {
		ids := make([]string, len(session.Exams))
		for i, exam := range session.Exams {
			ids[i] = exam.ID
		}
		if err = s.exams.UpdateStatusBatch(ctx, tx, ids, models.ExamStatusAllocated); err != nil {
			return apperrors.FromError(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return apperrors.FromError(err)
	}
	return nil
}

// finishConflicts closes the run with conflict detection. Allocate re-derives
// against persisted state; preview derives in memory over the committed
// snapshot plus the simulated allocations, so both modes report the same set
// for identical inputs.
func (s *AllocationService) finishConflicts(ctx context.Context, state *runState) ([]models.Conflict, error) {
	if state.preview {
		combined := make([]models.Allocation, 0, len(state.committed)+len(state.created))
		combined = append(combined, state.committed...)
		combined = append(combined, state.created...)
		return deriveConflicts(combined), nil
	}
	conflicts, err := s.detector.DetectConflicts(ctx)
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (s *AllocationService) observe(preview bool, result *dto.AllocationRunResult) {
	if s.observer != nil {
		s.observer.ObserveAllocationRun(preview, result)
	}
}

// runScope derives the mutual-exclusion key for a run. The candidate pool is
// filtered by campus only, so runs targeting different departments of one
// campus still contend for the same faculty and must serialize. Unscoped runs
// contend on a single global key.
func runScope(req dto.AllocationRequest) string {
	campus := strings.TrimSpace(strings.ToLower(req.Campus))
	if campus == "" {
		return "all"
	}
	return campus
}
