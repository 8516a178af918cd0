// Package lifecycle computes test statuses from wall-clock time windows.
//
// The transition rule lives in one pure function, Reconcile, invoked from
// the periodic sweep here and from every read path in the service layer, so
// the two call sites can never disagree.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/quizzy-app/quizzy/internal/model"
)

// DefaultInterval is the default sweep period.
const DefaultInterval = time.Minute

// Reconcile maps (current status, window, current time) to the next status.
// Only assigned and active tests move; everything else is left untouched.
// Applying it twice with the same inputs is a no-op.
func Reconcile(status model.Status, start, end *time.Time, now time.Time) model.Status {
	if status != model.StatusAssigned && status != model.StatusActive {
		return status
	}
	if start == nil || end == nil {
		return status
	}
	switch {
	case now.Before(*start):
		return status
	case now.After(*end):
		return model.StatusStopped
	default:
		return model.StatusActive
	}
}

// ReconcileTest applies Reconcile to a test's effective window.
func ReconcileTest(t *model.Test, now time.Time) model.Status {
	start, end := t.Window()
	return Reconcile(t.Status, start, end, now)
}

// Store is the slice of the test store the sweeper needs.
type Store interface {
	ListOutstandingTests() ([]model.Test, error)
	UpdateTestStatus(id int64, status model.Status) error
}

// Sweeper periodically reconciles every outstanding test.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper. now must return time in the zone the windows
// are stored in; the service layer uses the same function.
func NewSweeper(store Store, interval time.Duration, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: store, interval: interval, now: now}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	slog.Info("lifecycle sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep reconciles all assigned/active tests once, persisting any changes.
func (s *Sweeper) Sweep() {
	tests, err := s.store.ListOutstandingTests()
	if err != nil {
		slog.Error("sweep: list tests", "error", err)
		return
	}
	now := s.now()
	for _, t := range tests {
		next := ReconcileTest(&t, now)
		if next == t.Status {
			continue
		}
		if err := s.store.UpdateTestStatus(t.ID, next); err != nil {
			slog.Error("sweep: update status", "test", t.Name, "error", err)
			continue
		}
		slog.Info("test status reconciled", "test", t.Name, "from", t.Status, "to", next)
	}
}
