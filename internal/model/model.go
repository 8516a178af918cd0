package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
)

// User represents a system user.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Status represents the lifecycle state of a test.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusAssigned  Status = "assigned"
	StatusActive    Status = "active"
	StatusStopped   Status = "stopped"
	// StatusCompleted is reserved for an externally driven terminal state.
	// Nothing in this codebase sets it automatically.
	StatusCompleted Status = "completed"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValidDifficulty reports whether d is a known difficulty level.
func IsValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionKind distinguishes theory questions from numerical ones.
type QuestionKind string

const (
	KindTheory    QuestionKind = "theory"
	KindNumerical QuestionKind = "numerical"
)

// NumOptions is the required number of answer options per question.
const NumOptions = 4

// Question is a single multiple-choice question.
type Question struct {
	Text           string       `json:"question"`
	Options        []string     `json:"options"`
	CorrectAnswer  string       `json:"correct_answer"`
	Kind           QuestionKind `json:"type"`
	Difficulty     Difficulty   `json:"difficulty"`
	RelevanceScore float64      `json:"relevance_score"`
}

// Validate checks the question invariants. A question failing any check is
// discarded, never stored.
func (q Question) Validate() error {
	if q.Text == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) != NumOptions {
		return fmt.Errorf("expected %d options, got %d", NumOptions, len(q.Options))
	}
	correct := false
	for _, opt := range q.Options {
		if opt == "" {
			return errors.New("empty option")
		}
		if opt == q.CorrectAnswer {
			correct = true
		}
	}
	if !correct {
		return errors.New("correct answer does not match any option")
	}
	if q.Kind != KindTheory && q.Kind != KindNumerical {
		return fmt.Errorf("invalid question type %q", q.Kind)
	}
	if !IsValidDifficulty(q.Difficulty) {
		return fmt.Errorf("invalid difficulty %q", q.Difficulty)
	}
	if q.RelevanceScore < 0 || q.RelevanceScore > 1 {
		return fmt.Errorf("relevance score %v out of [0,1]", q.RelevanceScore)
	}
	return nil
}

// Result is a student's submitted outcome for one test.
type Result struct {
	Score     int `json:"score"`
	Total     int `json:"total_questions"`
	TimeSpent int `json:"time_spent"` // seconds
}

// Validate checks the result payload.
func (r Result) Validate() error {
	if r.Total <= 0 {
		return errors.New("total question count must be positive")
	}
	if r.Score < 0 || r.Score > r.Total {
		return fmt.Errorf("score %d out of range 0..%d", r.Score, r.Total)
	}
	if r.TimeSpent < 0 {
		return errors.New("negative time spent")
	}
	return nil
}

// Test is the central aggregate: a generated question set plus its
// assignment metadata, window, and per-student results.
type Test struct {
	ID         int64            `json:"id"`
	OwnerID    int64            `json:"owner_id"`
	Name       string           `json:"name"`
	SourceName string           `json:"source_name"`
	SourceText string           `json:"-"`
	Questions  []Question       `json:"questions"`
	Status     Status           `json:"status"`
	Cohort     []int64          `json:"assigned_to"`
	StartTime  *time.Time       `json:"start_time,omitempty"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	Duration   int              `json:"duration,omitempty"` // minutes, 0 = none
	Results    map[int64]Result `json:"results"`
	CreatedAt  time.Time        `json:"created_at"`
}

// InCohort reports whether the given student is assigned to the test.
func (t *Test) InCohort(studentID int64) bool {
	for _, id := range t.Cohort {
		if id == studentID {
			return true
		}
	}
	return false
}

// Window returns the test's effective time window. Self-serve tests carry a
// start time and a duration but no stored end time; their end is derived as
// start + duration. Returns nil for whatever is not derivable.
func (t *Test) Window() (start, end *time.Time) {
	start = t.StartTime
	end = t.EndTime
	if end == nil && start != nil && t.Duration > 0 {
		e := start.Add(time.Duration(t.Duration) * time.Minute)
		end = &e
	}
	return start, end
}
