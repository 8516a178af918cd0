package store

import (
	"sort"

	"github.com/quizzy-app/quizzy/internal/model"
)

// ExportTeacherResults collects every test owned by the teacher together
// with per-student results resolved to display names, for the export
// command.
func (s *Store) ExportTeacherResults(teacherID int64) ([]model.TestExport, error) {
	tests, err := s.ListTestsByOwner(teacherID)
	if err != nil {
		return nil, err
	}

	exports := make([]model.TestExport, 0, len(tests))
	for _, t := range tests {
		te := model.TestExport{
			TestName:     t.Name,
			SourceName:   t.SourceName,
			Status:       t.Status,
			NumQuestions: len(t.Questions),
			StartTime:    t.StartTime,
			EndTime:      t.EndTime,
		}

		ids := make([]int64, 0, len(t.Results))
		for id := range t.Results {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			r := t.Results[id]
			name := ""
			if u, err := s.GetUserByID(id); err == nil && u != nil {
				name = u.Name
			}
			te.Results = append(te.Results, model.StudentResult{
				StudentID:   id,
				StudentName: name,
				Score:       r.Score,
				Total:       r.Total,
				TimeSpent:   r.TimeSpent,
			})
		}
		exports = append(exports, te)
	}
	return exports, nil
}
