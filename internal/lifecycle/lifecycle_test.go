package lifecycle

import (
	"testing"
	"time"

	"github.com/quizzy-app/quizzy/internal/model"
)

func window(start, end time.Time) (*time.Time, *time.Time) {
	return &start, &end
}

func TestReconcile(t *testing.T) {
	base := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
	start, end := window(base, base.Add(30*time.Minute))

	tests := []struct {
		name   string
		status model.Status
		now    time.Time
		want   model.Status
	}{
		{"assigned before window", model.StatusAssigned, base.Add(-time.Minute), model.StatusAssigned},
		{"assigned at start", model.StatusAssigned, base, model.StatusActive},
		{"assigned inside window", model.StatusAssigned, base.Add(10 * time.Minute), model.StatusActive},
		{"assigned at end", model.StatusAssigned, base.Add(30 * time.Minute), model.StatusActive},
		{"assigned after window", model.StatusAssigned, base.Add(31 * time.Minute), model.StatusStopped},
		{"active inside window", model.StatusActive, base.Add(20 * time.Minute), model.StatusActive},
		{"active after window", model.StatusActive, base.Add(time.Hour), model.StatusStopped},
		{"active before window", model.StatusActive, base.Add(-time.Hour), model.StatusActive},
		{"generated untouched", model.StatusGenerated, base.Add(10 * time.Minute), model.StatusGenerated},
		{"stopped untouched", model.StatusStopped, base.Add(10 * time.Minute), model.StatusStopped},
		{"completed untouched", model.StatusCompleted, base.Add(10 * time.Minute), model.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.status, start, end, tt.now)
			if got != tt.want {
				t.Errorf("Reconcile() = %q, want %q", got, tt.want)
			}
			// Idempotence: a second application changes nothing.
			if again := Reconcile(got, start, end, tt.now); again != got {
				t.Errorf("second Reconcile() = %q, want %q", again, got)
			}
		})
	}
}

func TestReconcileMissingWindow(t *testing.T) {
	now := time.Now()
	if got := Reconcile(model.StatusAssigned, nil, nil, now); got != model.StatusAssigned {
		t.Errorf("missing window should leave status unchanged, got %q", got)
	}
}

func TestReconcileTestDerivedEnd(t *testing.T) {
	// Self-serve test: start + duration, no stored end time.
	start := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
	test := model.Test{
		Status:    model.StatusActive,
		StartTime: &start,
		Duration:  30,
	}

	if got := ReconcileTest(&test, start.Add(10*time.Minute)); got != model.StatusActive {
		t.Errorf("inside derived window: got %q", got)
	}
	if got := ReconcileTest(&test, start.Add(31*time.Minute)); got != model.StatusStopped {
		t.Errorf("past derived window: got %q", got)
	}
}

// fakeStore records status updates for sweeper tests.
type fakeStore struct {
	tests   []model.Test
	updated map[int64]model.Status
	listErr error
}

func (f *fakeStore) ListOutstandingTests() ([]model.Test, error) {
	return f.tests, f.listErr
}

func (f *fakeStore) UpdateTestStatus(id int64, status model.Status) error {
	if f.updated == nil {
		f.updated = make(map[int64]model.Status)
	}
	f.updated[id] = status
	return nil
}

func TestSweep(t *testing.T) {
	base := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
	open := base.Add(-10 * time.Minute)
	closed := base.Add(-time.Hour)
	closedEnd := base.Add(-30 * time.Minute)
	future := base.Add(time.Hour)
	futureEnd := base.Add(2 * time.Hour)

	fs := &fakeStore{tests: []model.Test{
		{ID: 1, Name: "in-window", Status: model.StatusAssigned, StartTime: &open, EndTime: &future},
		{ID: 2, Name: "expired", Status: model.StatusActive, StartTime: &closed, EndTime: &closedEnd},
		{ID: 3, Name: "not-yet", Status: model.StatusAssigned, StartTime: &future, EndTime: &futureEnd},
	}}

	sw := NewSweeper(fs, time.Minute, func() time.Time { return base })
	sw.Sweep()

	if got := fs.updated[1]; got != model.StatusActive {
		t.Errorf("test 1: expected active, got %q", got)
	}
	if got := fs.updated[2]; got != model.StatusStopped {
		t.Errorf("test 2: expected stopped, got %q", got)
	}
	if _, ok := fs.updated[3]; ok {
		t.Error("test 3: should not have been updated")
	}

	// A second sweep from the same inputs must be a no-op.
	fs.tests[0].Status = model.StatusActive
	fs.tests[1].Status = model.StatusStopped
	fs.updated = nil
	sw.Sweep()
	if len(fs.updated) != 0 {
		t.Errorf("second sweep changed %d tests", len(fs.updated))
	}
}
