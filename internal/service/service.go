// Package service implements the core operations on tests: generation,
// assignment, lifecycle management, and result submission. All
// authorization, window, and status rules live here; the HTTP layer only
// decodes requests and maps errors.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quizzy-app/quizzy/internal/extract"
	"github.com/quizzy-app/quizzy/internal/generator"
	"github.com/quizzy-app/quizzy/internal/lifecycle"
	"github.com/quizzy-app/quizzy/internal/model"
	"github.com/quizzy-app/quizzy/internal/store"
)

// Error taxonomy. Input validation and permission failures are rejected
// immediately with no side effects; external-call failures surface only
// where the caller needs an immediate single answer.
var (
	ErrValidation   = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrWindowClosed = errors.New("test not active or window closed")
	ErrSynthesis    = errors.New("question synthesis failed")
)

// MaxQuestions bounds a single generation request.
const MaxQuestions = 20

// DefaultSelfServeDuration is the window length, in minutes, granted to a
// student-generated test.
const DefaultSelfServeDuration = 30

// Config holds service construction parameters.
type Config struct {
	// Now returns the current time in the fixed zone windows are stored in.
	// The lifecycle sweeper must use the same function.
	Now func() time.Time
	// SelfServeDuration is the window, in minutes, for student-generated
	// tests. Defaults to DefaultSelfServeDuration.
	SelfServeDuration int
}

// Service wires the sampler, extractor, and store together.
type Service struct {
	store     *store.Store
	sampler   *generator.Sampler
	extractor extract.Extractor
	now       func() time.Time
	selfServe int
}

// New creates a Service.
func New(st *store.Store, sampler *generator.Sampler, extractor extract.Extractor, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SelfServeDuration <= 0 {
		cfg.SelfServeDuration = DefaultSelfServeDuration
	}
	return &Service{
		store:     st,
		sampler:   sampler,
		extractor: extractor,
		now:       cfg.Now,
		selfServe: cfg.SelfServeDuration,
	}
}

// GenerateInput describes one generation request.
type GenerateInput struct {
	DocumentPath string
	SourceName   string
	TestName     string
	NumQuestions int
	Difficulty   model.Difficulty
}

// GenerateOutput is a successful generation, possibly with a warning when
// relevance filtering left fewer questions than requested.
type GenerateOutput struct {
	Test    *model.Test
	Warning string
}

// Generate extracts the document, samples questions, and persists a test.
// Teacher tests start in 'generated' status; a student's self-serve test is
// immediately 'active' with a window derived from a fixed duration.
func (s *Service) Generate(ctx context.Context, caller *model.User, in GenerateInput) (*GenerateOutput, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: no authenticated user", ErrForbidden)
	}
	if in.TestName == "" {
		return nil, fmt.Errorf("%w: test name required", ErrValidation)
	}
	if in.NumQuestions < 1 || in.NumQuestions > MaxQuestions {
		return nil, fmt.Errorf("%w: number of questions must be 1-%d", ErrValidation, MaxQuestions)
	}
	if !model.IsValidDifficulty(in.Difficulty) {
		return nil, fmt.Errorf("%w: difficulty must be easy, medium, or hard", ErrValidation)
	}

	text, err := s.extractor.Extract(in.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("extract document: %w", err)
	}

	questions, err := s.sampler.Generate(ctx, text, in.NumQuestions, in.Difficulty)
	if err != nil {
		if errors.Is(err, generator.ErrNoContent) {
			return nil, fmt.Errorf("%w: document has no text content", ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	now := s.now()
	test := model.Test{
		OwnerID:    caller.ID,
		Name:       in.TestName,
		SourceName: in.SourceName,
		SourceText: text,
		Questions:  questions,
		Status:     model.StatusGenerated,
		CreatedAt:  now,
	}
	if caller.Role == model.UserRoleStudent {
		// Self-serve path: active right away, cohort of one, end of window
		// derived from start + duration.
		test.Status = model.StatusActive
		test.Cohort = []int64{caller.ID}
		test.StartTime = &now
		test.Duration = s.selfServe
	}

	id, created, err := s.store.UpsertGeneratedTest(test)
	if err != nil {
		return nil, fmt.Errorf("store test: %w", err)
	}
	slog.Info("test generated", "test", in.TestName, "owner", caller.ID,
		"questions", len(questions), "created", created)

	stored, err := s.store.GetTest(id)
	if err != nil {
		return nil, err
	}

	out := &GenerateOutput{Test: stored}
	if len(questions) < in.NumQuestions {
		out.Warning = fmt.Sprintf("only %d questions generated due to relevance filtering", len(questions))
		slog.Warn("partial generation", "test", in.TestName,
			"requested", in.NumQuestions, "generated", len(questions))
	}
	return out, nil
}

// Assignment carries cohort and window parameters for assign and reassign.
type Assignment struct {
	Cohort   []int64
	Start    time.Time
	End      time.Time
	Duration int // minutes
}

// Assign attaches a cohort and window to a teacher's test and moves it to
// 'assigned'. Assigning again simply overwrites the previous assignment.
func (s *Service) Assign(ctx context.Context, caller *model.User, testName string, a Assignment) error {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return err
	}
	if err := s.validateAssignment(a); err != nil {
		return err
	}
	return s.store.UpdateAssignment(t.ID, a.Cohort, a.Start, a.End, a.Duration, model.StatusAssigned)
}

// ManageAction is a teacher's explicit lifecycle override.
type ManageAction string

const (
	ActionStart    ManageAction = "start"
	ActionStop     ManageAction = "stop"
	ActionReassign ManageAction = "reassign"
)

// Manage applies a manual start/stop override or a reassignment. Manual
// overrides win until the next reconciliation pass re-evaluates the window.
func (s *Service) Manage(ctx context.Context, caller *model.User, testName string, action ManageAction, a *Assignment) error {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return err
	}
	switch action {
	case ActionStart:
		return s.store.UpdateTestStatus(t.ID, model.StatusActive)
	case ActionStop:
		return s.store.UpdateTestStatus(t.ID, model.StatusStopped)
	case ActionReassign:
		if a == nil {
			return fmt.Errorf("%w: reassign requires cohort and window", ErrValidation)
		}
		if err := s.validateAssignment(*a); err != nil {
			return err
		}
		return s.store.UpdateAssignment(t.ID, a.Cohort, a.Start, a.End, a.Duration, model.StatusAssigned)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
}

// SubmitResult records a student's result for a test. The test must be
// active after reconciliation AND the current time must lie inside the
// effective window; the time check is independent of the status check, so a
// stale manual override can never extend the window.
func (s *Service) SubmitResult(ctx context.Context, caller *model.User, testID int64, r model.Result) error {
	if caller == nil || caller.Role != model.UserRoleStudent {
		return fmt.Errorf("%w: only students can submit results", ErrForbidden)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	t, err := s.store.GetTest(testID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: test %d", ErrNotFound, testID)
	}
	if !t.InCohort(caller.ID) {
		return fmt.Errorf("%w: not assigned to this test", ErrForbidden)
	}

	now := s.now()
	status := s.reconcileOnRead(t, caller, now)
	if status != model.StatusActive {
		return fmt.Errorf("%w: status %s", ErrWindowClosed, status)
	}
	start, end := t.Window()
	if start == nil || end == nil || now.Before(*start) || now.After(*end) {
		return ErrWindowClosed
	}

	return s.store.SetResult(t.ID, caller.ID, r)
}

// GetTest returns one test with reconciled status. Teachers see their own
// tests; students see tests they are assigned to.
func (s *Service) GetTest(ctx context.Context, caller *model.User, testID int64) (*model.Test, error) {
	if caller == nil {
		return nil, ErrForbidden
	}
	t, err := s.store.GetTest(testID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: test %d", ErrNotFound, testID)
	}
	if t.OwnerID != caller.ID && !t.InCohort(caller.ID) {
		return nil, ErrForbidden
	}
	t.Status = s.reconcileOnRead(t, caller, s.now())
	return t, nil
}

// ListTests returns the caller's tests with reconciled statuses: owned tests
// for a teacher, assigned tests for a student.
func (s *Service) ListTests(ctx context.Context, caller *model.User) ([]model.Test, error) {
	if caller == nil {
		return nil, ErrForbidden
	}
	var tests []model.Test
	var err error
	if caller.Role == model.UserRoleTeacher {
		tests, err = s.store.ListTestsByOwner(caller.ID)
	} else {
		tests, err = s.store.ListTestsByCohort(caller.ID)
	}
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range tests {
		tests[i].Status = s.reconcileOnRead(&tests[i], caller, now)
	}
	return tests, nil
}

// Results returns the per-student results of a teacher's test.
func (s *Service) Results(ctx context.Context, caller *model.User, testName string) (map[int64]model.Result, error) {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return nil, err
	}
	return t.Results, nil
}

// reconcileOnRead applies the shared transition rule and persists a changed
// status. Tests owned by the reader are left alone: a student's own
// self-serve test was just set active by their generation call, and the
// sweep covers a teacher's own tests.
func (s *Service) reconcileOnRead(t *model.Test, caller *model.User, now time.Time) model.Status {
	if t.OwnerID == caller.ID {
		return t.Status
	}
	next := lifecycle.ReconcileTest(t, now)
	if next != t.Status {
		if err := s.store.UpdateTestStatus(t.ID, next); err != nil {
			slog.Error("reconcile on read", "test", t.Name, "error", err)
			return t.Status
		}
		slog.Info("test status reconciled on read", "test", t.Name, "from", t.Status, "to", next)
	}
	return next
}

func (s *Service) ownedTest(caller *model.User, testName string) (*model.Test, error) {
	if caller == nil || caller.Role != model.UserRoleTeacher {
		return nil, fmt.Errorf("%w: teachers only", ErrForbidden)
	}
	if testName == "" {
		return nil, fmt.Errorf("%w: test name required", ErrValidation)
	}
	t, err := s.store.GetTestByName(caller.ID, testName)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: test %q", ErrNotFound, testName)
	}
	return t, nil
}

func (s *Service) validateAssignment(a Assignment) error {
	if len(a.Cohort) == 0 {
		return fmt.Errorf("%w: cohort must not be empty", ErrValidation)
	}
	if a.Start.IsZero() || a.End.IsZero() {
		return fmt.Errorf("%w: start and end times required", ErrValidation)
	}
	if !a.Start.Before(a.End) {
		return fmt.Errorf("%w: start time must be before end time", ErrValidation)
	}
	if a.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrValidation)
	}
	n, err := s.store.CountStudents(a.Cohort)
	if err != nil {
		return err
	}
	if n != len(a.Cohort) {
		return fmt.Errorf("%w: some student ids are invalid", ErrValidation)
	}
	return nil
}
