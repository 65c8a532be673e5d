package monitor

import (
	"testing"
	"time"
)

func TestReduce_PriorityOrder(t *testing.T) {
	cases := []struct {
		name     string
		statuses []DisplayStatus
		want     DisplayStatus
	}{
		{"empty", nil, StatusNotRunning},
		{"all_gone", []DisplayStatus{StatusNotRunning, StatusNotRunning}, StatusNotRunning},
		{"idle_beats_gone", []DisplayStatus{StatusNotRunning, StatusIdle}, StatusIdle},
		{"positive_beats_idle", []DisplayStatus{StatusIdle, StatusPositiveWork}, StatusPositiveWork},
		{"active_beats_everything", []DisplayStatus{StatusIdle, StatusActive, StatusNotRunning}, StatusActive},
		{"active_beats_positive", []DisplayStatus{StatusPositiveWork, StatusActive}, StatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reduce(tc.statuses); got != tc.want {
				t.Errorf("Reduce(%v) = %v, want %v", tc.statuses, got, tc.want)
			}
		})
	}
}

func TestClassify_GoneWinsOverEverything(t *testing.T) {
	rules := Rules{ActiveRecency: time.Second}
	prev := &WindowSnapshot{ID: "w", Signature: "a"}
	cur := WindowSnapshot{ID: "w", Signature: "b", Gone: true}
	if got := Classify(prev, cur, 10*time.Millisecond, rules); got != StatusNotRunning {
		t.Fatalf("expected not_running for gone window, got %v", got)
	}
}

func TestClassify_RecentChangeIsActive(t *testing.T) {
	rules := Rules{ActiveRecency: time.Second}
	prev := &WindowSnapshot{ID: "w", Signature: "a"}
	cur := WindowSnapshot{ID: "w", Signature: "b"}
	if got := Classify(prev, cur, 500*time.Millisecond, rules); got != StatusActive {
		t.Fatalf("expected active, got %v", got)
	}
}

func TestClassify_StaleChangeIsNotActive(t *testing.T) {
	rules := Rules{ActiveRecency: time.Second}
	prev := &WindowSnapshot{ID: "w", Signature: "a"}
	cur := WindowSnapshot{ID: "w", Signature: "b"}
	if got := Classify(prev, cur, 5*time.Second, rules); got != StatusIdle {
		t.Fatalf("expected idle for change outside recency window, got %v", got)
	}
}

func TestClassify_ProgressHeuristic(t *testing.T) {
	rules := Rules{
		ActiveRecency: time.Second,
		Progress:      func(prev, cur string) bool { return cur == "checks-pass" },
	}
	prev := &WindowSnapshot{ID: "w", Signature: "building"}
	cur := WindowSnapshot{ID: "w", Signature: "checks-pass"}

	// Within the recency window, active takes precedence.
	if got := Classify(prev, cur, 100*time.Millisecond, rules); got != StatusActive {
		t.Fatalf("expected active inside recency window, got %v", got)
	}
	// Outside it, the heuristic claims the change.
	if got := Classify(prev, cur, 5*time.Second, rules); got != StatusPositiveWork {
		t.Fatalf("expected positive_work, got %v", got)
	}
}

func TestClassify_NoHeuristicNeverPositiveWork(t *testing.T) {
	rules := Rules{ActiveRecency: time.Second}
	prev := &WindowSnapshot{ID: "w", Signature: "a"}
	cur := WindowSnapshot{ID: "w", Signature: "b"}
	if got := Classify(prev, cur, 5*time.Second, rules); got == StatusPositiveWork {
		t.Fatal("positive_work returned without a progress heuristic")
	}
}

func TestClassify_NoChangeIsIdle(t *testing.T) {
	rules := Rules{ActiveRecency: time.Second}
	prev := &WindowSnapshot{ID: "w", Signature: "same"}
	cur := WindowSnapshot{ID: "w", Signature: "same"}
	if got := Classify(prev, cur, 10*time.Millisecond, rules); got != StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}
}

func TestClassify_FirstObservationIsIdle(t *testing.T) {
	rules := Rules{ActiveRecency: time.Second}
	cur := WindowSnapshot{ID: "w", Signature: "a"}
	if got := Classify(nil, cur, 0, rules); got != StatusIdle {
		t.Fatalf("expected idle on first observation, got %v", got)
	}
}

// Identical inputs must always yield identical output.
func TestClassify_Deterministic(t *testing.T) {
	rules := Rules{
		ActiveRecency: time.Second,
		Progress:      func(prev, cur string) bool { return len(cur) > len(prev) },
	}
	prev := &WindowSnapshot{ID: "w", Signature: "abc"}
	cur := WindowSnapshot{ID: "w", Signature: "abcdef"}

	first := Classify(prev, cur, 3*time.Second, rules)
	for i := 0; i < 100; i++ {
		if got := Classify(prev, cur, 3*time.Second, rules); got != first {
			t.Fatalf("non-deterministic classification: %v then %v", first, got)
		}
	}
}
