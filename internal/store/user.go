package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/quizzy-app/quizzy/internal/model"
)

// CreateUser inserts a new user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (name, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.PasswordHash, u.Role, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "email", u.Email, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "email", u.Email, "role", u.Role)
	return id, nil
}

// GetUserByEmail returns a user by email, or nil if absent.
func (s *Store) GetUserByEmail(email string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns a user by ID, or nil if absent.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListStudents returns all student accounts.
func (s *Store) ListStudents() ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE role = ? ORDER BY id`, model.UserRoleStudent,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountStudents returns how many of the given ids belong to existing student
// accounts. Used to validate a cohort before assignment.
func (s *Store) CountStudents(ids []int64) (int, error) {
	count := 0
	for _, id := range ids {
		var n int
		err := s.db.QueryRow(
			`SELECT COUNT(*) FROM users WHERE id = ? AND role = ?`,
			id, model.UserRoleStudent,
		).Scan(&n)
		if err != nil {
			return 0, err
		}
		count += n
	}
	return count, nil
}

// UpdateStudent updates a student's name, email, and optionally password hash.
func (s *Store) UpdateStudent(id int64, name, email, passwordHash string) error {
	var res sql.Result
	var err error
	if passwordHash != "" {
		res, err = s.db.Exec(
			`UPDATE users SET name = ?, email = ?, password_hash = ? WHERE id = ? AND role = ?`,
			name, email, passwordHash, id, model.UserRoleStudent,
		)
	} else {
		res, err = s.db.Exec(
			`UPDATE users SET name = ?, email = ? WHERE id = ? AND role = ?`,
			name, email, id, model.UserRoleStudent,
		)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteStudent removes a student account and pulls them out of every cohort
// they were assigned to.
func (s *Store) DeleteStudent(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM users WHERE id = ? AND role = ?`, id, model.UserRoleStudent)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	rows, err := tx.Query(
		`SELECT id, cohort FROM tests
		 WHERE EXISTS (SELECT 1 FROM json_each(tests.cohort) WHERE json_each.value = ?)`, id)
	if err != nil {
		return err
	}
	type pull struct {
		testID int64
		cohort []int64
	}
	var pulls []pull
	for rows.Next() {
		var testID int64
		var raw string
		if err := rows.Scan(&testID, &raw); err != nil {
			rows.Close()
			return err
		}
		var cohort []int64
		if err := json.Unmarshal([]byte(raw), &cohort); err != nil {
			rows.Close()
			return err
		}
		cohort = slices.DeleteFunc(cohort, func(sid int64) bool { return sid == id })
		pulls = append(pulls, pull{testID, cohort})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pulls {
		updated, err := json.Marshal(p.cohort)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE tests SET cohort = ? WHERE id = ?`, string(updated), p.testID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
