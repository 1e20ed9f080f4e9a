package router

import (
	"context"
	"time"

	"github.com/grantwatch/retrieval/internal/domain/search/result"
)

// WorkflowDeadlineAlerts is the registered name of the deadline-alerts workflow.
const WorkflowDeadlineAlerts = "deadline-alerts"

// DefaultDeadlineWindow is how far ahead deadline-alerts looks.
const DefaultDeadlineWindow = 30 * 24 * time.Hour

// DeadlineAlerts collects grants whose close date falls inside the upcoming
// window, producing the alert payload. Delivery belongs to the notification
// channel, which is outside the retrieval core.
type DeadlineAlerts struct {
	meta   MetadataReader
	window time.Duration
	now    func() time.Time
}

// NewDeadlineAlerts creates the deadline-alerts workflow.
func NewDeadlineAlerts(meta MetadataReader, window time.Duration) *DeadlineAlerts {
	if window <= 0 {
		window = DefaultDeadlineWindow
	}
	return &DeadlineAlerts{meta: meta, window: window, now: time.Now}
}

// Run implements Workflow. Results are scored by deadline proximity so the
// soonest-closing grants sort first under the standard result ordering.
func (w *DeadlineAlerts) Run(_ context.Context) ([]result.Result, error) {
	now := w.now()
	horizon := now.Add(w.window)

	var results []result.Result
	for _, id := range w.meta.AllIDs() {
		rec, err := w.meta.Get(id)
		if err != nil {
			continue
		}
		deadline := rec.CloseDate()
		if deadline.IsZero() || deadline.Before(now) || deadline.After(horizon) {
			continue
		}
		// Score in (0, 1]: 1 means closing now, approaching 0 at the horizon.
		score := 1.0 - deadline.Sub(now).Seconds()/w.window.Seconds()
		results = append(results, result.New(id, score, rec))
	}

	result.Sort(results)
	return results, nil
}
