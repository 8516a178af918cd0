package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quizzy-app/quizzy/internal/model"
	"github.com/quizzy-app/quizzy/internal/store"
)

// DefaultReviewPageSize is the question page size when the caller gives none.
const DefaultReviewPageSize = 5

// ReviewQuestions returns one page of an owned test's questions, for
// index-addressed review. Pages are 1-based; the returned total is the full
// question count. A page past the end yields an empty slice, not an error.
func (s *Service) ReviewQuestions(ctx context.Context, caller *model.User, testName string, page, perPage int) ([]model.Question, int, error) {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultReviewPageSize
	}
	total := len(t.Questions)
	lo := (page - 1) * perPage
	if lo >= total {
		return []model.Question{}, total, nil
	}
	hi := min(lo+perPage, total)
	return t.Questions[lo:hi], total, nil
}

// EditQuestion replaces the question at the given index in an owned test.
func (s *Service) EditQuestion(ctx context.Context, caller *model.User, testName string, index int, q model.Question) error {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return mapIndexErr(s.store.UpdateQuestionAt(t.ID, index, q))
}

// DeleteQuestion removes the question at the given index from an owned test.
func (s *Service) DeleteQuestion(ctx context.Context, caller *model.User, testName string, index int) error {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return err
	}
	return mapIndexErr(s.store.RemoveQuestionAt(t.ID, index))
}

// RegenerateQuestion replaces the question at the given index with a freshly
// synthesized one of the same difficulty, drawn from the test's stored
// source text. Synthesis failure is a hard error and leaves the stored
// question untouched.
func (s *Service) RegenerateQuestion(ctx context.Context, caller *model.User, testName string, index int) (*model.Question, error) {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(t.Questions) {
		return nil, fmt.Errorf("%w: question index %d out of range", ErrValidation, index)
	}
	q, err := s.sampler.One(ctx, t.SourceText, t.Questions[index].Difficulty)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if err := mapIndexErr(s.store.UpdateQuestionAt(t.ID, index, q)); err != nil {
		return nil, err
	}
	slog.Info("question regenerated", "test", testName, "index", index)
	return &q, nil
}

// DeleteTest removes an owned test, but only while it is still in
// 'generated' status. Once assigned, a test cannot be deleted.
func (s *Service) DeleteTest(ctx context.Context, caller *model.User, testName string) error {
	t, err := s.ownedTest(caller, testName)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteGeneratedTest(caller.ID, testName)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: cannot delete test in %s status", ErrValidation, t.Status)
	}
	slog.Info("test deleted", "test", testName, "owner", caller.ID)
	return nil
}

func mapIndexErr(err error) error {
	switch {
	case errors.Is(err, store.ErrBadIndex):
		return fmt.Errorf("%w: question index out of range", ErrValidation)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: test", ErrNotFound)
	default:
		return err
	}
}
