// Package monitor implements vigil's activity monitoring core: it polls a
// snapshot source for the windows of monitored application instances,
// classifies each window's activity, and publishes debounced per-app and
// global aggregate statuses.
package monitor

// DisplayStatus classifies a single monitored window's activity. Exactly
// one value applies per window at any instant; transitions are driven by
// the classifier, never set directly by consumers.
type DisplayStatus string

const (
	// StatusActive means the window's observable content changed recently.
	StatusActive DisplayStatus = "active"

	// StatusPositiveWork means the last change matched the beneficial
	// progress heuristic (e.g. checks passing).
	StatusPositiveWork DisplayStatus = "positive_work"

	// StatusIdle means the window is present but nothing changed recently.
	StatusIdle DisplayStatus = "idle"

	// StatusNotRunning means the window or its process is gone.
	StatusNotRunning DisplayStatus = "not_running"
)

// rank orders statuses for aggregate reduction: active > positive_work >
// idle > not_running.
func (s DisplayStatus) rank() int {
	switch s {
	case StatusActive:
		return 3
	case StatusPositiveWork:
		return 2
	case StatusIdle:
		return 1
	default:
		return 0
	}
}

// Reduce collapses a set of window statuses into one aggregate status.
// An empty set reduces to StatusNotRunning.
func Reduce(statuses []DisplayStatus) DisplayStatus {
	agg := StatusNotRunning
	for _, s := range statuses {
		if s.rank() > agg.rank() {
			agg = s
		}
	}
	return agg
}
