package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quizzy-app/quizzy/internal/model"
)

const testColumns = `id, owner_id, name, source_name, source_text, questions,
	status, cohort, start_time, end_time, duration, results, created_at`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// insertTestRow inserts a complete test row. The (owner, name) pair is
// unique; a clash surfaces as a constraint error.
func insertTestRow(e execer, t model.Test) (int64, error) {
	questions, cohort, results, err := encodeDocFields(t)
	if err != nil {
		return 0, err
	}
	res, err := e.Exec(
		`INSERT INTO tests (owner_id, name, source_name, source_text, questions,
			status, cohort, start_time, end_time, duration, results, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.Name, t.SourceName, t.SourceText, questions,
		t.Status, cohort, formatTime(t.StartTime), formatTime(t.EndTime),
		t.Duration, results, t.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpsertGeneratedTest creates a test in the given status, or, when a test
// with the same owner and name already sits in 'generated' status, replaces
// its questions, source, and timestamp in place. Re-generation under the
// same name is therefore idempotent. Returns the test id and whether a new
// row was created.
func (s *Store) UpsertGeneratedTest(t model.Test) (int64, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRow(
		`SELECT id FROM tests WHERE owner_id = ? AND name = ? AND status = ?`,
		t.OwnerID, t.Name, model.StatusGenerated,
	).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		id, insErr := insertTestRow(tx, t)
		if insErr != nil {
			return 0, false, insErr
		}
		return id, true, tx.Commit()
	case err != nil:
		return 0, false, err
	}

	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return 0, false, err
	}
	_, err = tx.Exec(
		`UPDATE tests SET questions = ?, source_name = ?, source_text = ?, created_at = ? WHERE id = ?`,
		string(questions), t.SourceName, t.SourceText, t.CreatedAt, existingID,
	)
	if err != nil {
		return 0, false, err
	}
	return existingID, false, tx.Commit()
}

// GetTest returns a test by ID, or nil if absent.
func (s *Store) GetTest(id int64) (*model.Test, error) {
	row := s.db.QueryRow(`SELECT `+testColumns+` FROM tests WHERE id = ?`, id)
	return scanTest(row)
}

// GetTestByName returns a teacher's test by name, or nil if absent.
func (s *Store) GetTestByName(ownerID int64, name string) (*model.Test, error) {
	row := s.db.QueryRow(
		`SELECT `+testColumns+` FROM tests WHERE owner_id = ? AND name = ?`,
		ownerID, name,
	)
	return scanTest(row)
}

// ListTestsByOwner returns all tests created by a teacher, newest first.
func (s *Store) ListTestsByOwner(ownerID int64) ([]model.Test, error) {
	return s.listTests(`SELECT `+testColumns+` FROM tests WHERE owner_id = ? ORDER BY id DESC`, ownerID)
}

// ListTestsByCohort returns all tests a student is assigned to, newest first.
func (s *Store) ListTestsByCohort(studentID int64) ([]model.Test, error) {
	return s.listTests(
		`SELECT `+testColumns+` FROM tests
		 WHERE EXISTS (SELECT 1 FROM json_each(tests.cohort) WHERE json_each.value = ?)
		 ORDER BY id DESC`, studentID)
}

// ListOutstandingTests returns every test the lifecycle sweep cares about.
func (s *Store) ListOutstandingTests() ([]model.Test, error) {
	return s.listTests(
		`SELECT `+testColumns+` FROM tests WHERE status IN (?, ?)`,
		model.StatusAssigned, model.StatusActive)
}

// UpdateTestStatus sets a test's status.
func (s *Store) UpdateTestStatus(id int64, status model.Status) error {
	res, err := s.db.Exec(`UPDATE tests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateAssignment writes a new cohort, window, duration, and status in one
// atomic update. Used by assign and reassign.
func (s *Store) UpdateAssignment(id int64, cohort []int64, start, end time.Time, duration int, status model.Status) error {
	cohortJSON, err := json.Marshal(cohort)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE tests SET cohort = ?, start_time = ?, end_time = ?, duration = ?, status = ? WHERE id = ?`,
		string(cohortJSON), start.Format(time.RFC3339), end.Format(time.RFC3339), duration, status, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateQuestionAt replaces the question at index idx. The read and write
// happen inside one transaction so the index checked is the index written.
func (s *Store) UpdateQuestionAt(id int64, idx int, q model.Question) error {
	return s.mutateQuestions(id, idx, func(questions []model.Question) []model.Question {
		questions[idx] = q
		return questions
	})
}

// RemoveQuestionAt deletes the question at index idx.
func (s *Store) RemoveQuestionAt(id int64, idx int) error {
	return s.mutateQuestions(id, idx, func(questions []model.Question) []model.Question {
		return append(questions[:idx], questions[idx+1:]...)
	})
}

func (s *Store) mutateQuestions(id int64, idx int, apply func([]model.Question) []model.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT questions FROM tests WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var questions []model.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return fmt.Errorf("decode questions: %w", err)
	}
	if idx < 0 || idx >= len(questions) {
		return ErrBadIndex
	}

	updated, err := json.Marshal(apply(questions))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE tests SET questions = ? WHERE id = ?`, string(updated), id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetResult records one student's result, overwriting any prior submission
// from the same student.
func (s *Store) SetResult(id int64, studentID int64, r model.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT results FROM tests WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	results := make(map[int64]model.Result)
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}
	results[studentID] = r

	updated, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE tests SET results = ? WHERE id = ?`, string(updated), id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteGeneratedTest removes a teacher's test, but only while it still sits
// in 'generated' status. Returns false when nothing matched.
func (s *Store) DeleteGeneratedTest(ownerID int64, name string) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM tests WHERE owner_id = ? AND name = ? AND status = ?`,
		ownerID, name, model.StatusGenerated,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) listTests(query string, args ...any) ([]model.Test, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tests []model.Test
	for rows.Next() {
		t, err := scanTestRow(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row *sql.Row) (*model.Test, error) {
	t, err := scanTestRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTestRow(row rowScanner) (*model.Test, error) {
	var t model.Test
	var questions, cohort, results string
	var start, end sql.NullString
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Name, &t.SourceName, &t.SourceText, &questions,
		&t.Status, &cohort, &start, &end, &t.Duration, &results, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal([]byte(cohort), &t.Cohort); err != nil {
		return nil, fmt.Errorf("decode cohort: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &t.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if t.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if t.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeDocFields(t model.Test) (questions, cohort, results string, err error) {
	if t.Questions == nil {
		t.Questions = []model.Question{}
	}
	if t.Cohort == nil {
		t.Cohort = []int64{}
	}
	if t.Results == nil {
		t.Results = map[int64]model.Result{}
	}
	q, err := json.Marshal(t.Questions)
	if err != nil {
		return "", "", "", err
	}
	c, err := json.Marshal(t.Cohort)
	if err != nil {
		return "", "", "", err
	}
	r, err := json.Marshal(t.Results)
	if err != nil {
		return "", "", "", err
	}
	return string(q), string(c), string(r), nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse stored time %q: %w", s.String, err)
	}
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
