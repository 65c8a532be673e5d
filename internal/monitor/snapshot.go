package monitor

import (
	"context"
	"time"
)

// WindowSnapshot is one point-in-time observation of a window, produced by
// the external snapshot source (accessibility bridge, editor plugin, ...).
type WindowSnapshot struct {
	// ID is the stable window identity, unique within its app.
	ID string

	// Title is the window's display title.
	Title string

	// DocumentPath is the document backing the window, if any.
	DocumentPath string

	// Signature is a raw content signature used for change detection.
	// The engine only ever compares signatures for equality; their format
	// is owned by the source.
	Signature string

	// Gone marks a window whose process or UI element has disappeared.
	// Sources report absence this way rather than erroring.
	Gone bool

	// Unreadable marks a window the source could not observe this tick.
	// The engine keeps the previous status (stale but valid) instead of
	// forcing a transition.
	Unreadable bool
}

// AppSnapshot is the observation set for one monitored application
// instance.
type AppSnapshot struct {
	// PID is the process identifier, unique across the registry.
	PID int

	// Name is the application's display name.
	Name string

	// Windows in the order the source discovered them.
	Windows []WindowSnapshot
}

// Source supplies the current observation set on every poll tick. It must
// be callable repeatedly; a process or window that is gone is simply
// omitted (or marked Gone), not reported as an error. Snapshot may block
// on collaborator I/O and should honor ctx cancellation.
type Source interface {
	Snapshot(ctx context.Context) ([]AppSnapshot, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context) ([]AppSnapshot, error)

// Snapshot implements Source.
func (f SourceFunc) Snapshot(ctx context.Context) ([]AppSnapshot, error) {
	return f(ctx)
}

// WindowInfo is the published view of one tracked window.
type WindowInfo struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	DocumentPath string        `json:"document_path,omitempty"`
	Paused       bool          `json:"paused,omitempty"`
	Status       DisplayStatus `json:"status"`
}

// AppInfo is the published view of one monitored application instance.
// Windows appear in discovery order; Status is the reduction over the
// app's non-paused windows.
type AppInfo struct {
	PID     int           `json:"pid"`
	Name    string        `json:"name"`
	Windows []WindowInfo  `json:"windows"`
	Status  DisplayStatus `json:"status"`
}

// StatusSnapshot is the immutable read model delivered to subscribers:
// every app's current state plus the global aggregate. Apps appear in
// discovery order.
type StatusSnapshot struct {
	Apps   []AppInfo     `json:"apps"`
	Global DisplayStatus `json:"global"`
	At     time.Time     `json:"at"`
}

// equalStatus reports whether two snapshots describe the same published
// state, ignoring timestamps. Used to suppress no-op publishes.
func equalStatus(a, b StatusSnapshot) bool {
	if a.Global != b.Global || len(a.Apps) != len(b.Apps) {
		return false
	}
	for i := range a.Apps {
		x, y := a.Apps[i], b.Apps[i]
		if x.PID != y.PID || x.Name != y.Name || x.Status != y.Status || len(x.Windows) != len(y.Windows) {
			return false
		}
		for j := range x.Windows {
			if x.Windows[j] != y.Windows[j] {
				return false
			}
		}
	}
	return true
}
