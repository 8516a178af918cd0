package model

import "time"

// ResultsExport is the top-level JSON structure for test result export.
type ResultsExport struct {
	TeacherID int64        `json:"teacher_id"`
	Date      string       `json:"date"`
	Tests     []TestExport `json:"tests"`
}

// TestExport holds one test's results for export.
type TestExport struct {
	TestName     string          `json:"test_name"`
	SourceName   string          `json:"source_name"`
	Status       Status          `json:"status"`
	NumQuestions int             `json:"num_questions"`
	StartTime    *time.Time      `json:"start_time,omitempty"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one student's submission for export.
type StudentResult struct {
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	Score       int    `json:"score"`
	Total       int    `json:"total_questions"`
	TimeSpent   int    `json:"time_spent"`
}
