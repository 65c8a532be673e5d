package monitor

import "time"

// Rules configures window classification.
type Rules struct {
	// ActiveRecency is how recent a content change must be to count as
	// active work rather than a late-arriving diff.
	ActiveRecency time.Duration

	// Progress reports whether the change between two successive content
	// signatures constitutes beneficial automated progress. Optional; when
	// nil the classifier never returns StatusPositiveWork. Must be pure.
	Progress func(prev, cur string) bool
}

// Classify maps a window observation onto a DisplayStatus.
//
// prev is the previous snapshot of the same window (nil on first
// observation) and elapsed is the time since it was taken. Classify is a
// pure function: identical inputs always produce identical outputs, which
// is what keeps it independently testable.
func Classify(prev *WindowSnapshot, cur WindowSnapshot, elapsed time.Duration, rules Rules) DisplayStatus {
	if cur.Gone {
		return StatusNotRunning
	}

	changed := prev != nil && cur.Signature != prev.Signature
	if changed && elapsed <= rules.ActiveRecency {
		return StatusActive
	}
	if changed && rules.Progress != nil && rules.Progress(prev.Signature, cur.Signature) {
		return StatusPositiveWork
	}
	return StatusIdle
}
