package monitor

import (
	"time"
)

// registry tracks the monitored apps and their windows in discovery order.
// It carries no locking of its own: the engine is its single writer and
// every read used outside the engine goes through the immutable snapshots
// handed to the Publisher.
type registry struct {
	order []int
	apps  map[int]*appEntry
}

type appEntry struct {
	pid  int
	name string

	order   []string
	windows map[string]*windowEntry

	status DisplayStatus
}

type windowEntry struct {
	id           string
	title        string
	documentPath string
	paused       bool
	status       DisplayStatus

	// lastSnapshot feeds the classifier as the previous observation.
	lastSnapshot WindowSnapshot
	observedAt   time.Time
}

func newRegistry() *registry {
	return &registry{apps: make(map[int]*appEntry)}
}

// upsertApp returns the entry for pid, creating it at the end of the
// discovery order if needed. The display name is refreshed either way.
func (r *registry) upsertApp(pid int, name string) *appEntry {
	app, ok := r.apps[pid]
	if !ok {
		app = &appEntry{
			pid:     pid,
			windows: make(map[string]*windowEntry),
			status:  StatusNotRunning,
		}
		r.apps[pid] = app
		r.order = append(r.order, pid)
	}
	app.name = name
	return app
}

// removeApp deletes an app and all its windows. No-op if absent.
func (r *registry) removeApp(pid int) {
	if _, ok := r.apps[pid]; !ok {
		return
	}
	delete(r.apps, pid)
	for i, p := range r.order {
		if p == pid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// app returns the entry for pid, or nil.
func (r *registry) app(pid int) *appEntry {
	return r.apps[pid]
}

// pids returns app ids in discovery order.
func (r *registry) pids() []int {
	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// upsert inserts or updates a window entry. New windows go to the end of
// the discovery order; existing windows keep their position.
func (a *appEntry) upsert(w *windowEntry) {
	if _, ok := a.windows[w.id]; !ok {
		a.order = append(a.order, w.id)
	}
	a.windows[w.id] = w
}

// remove deletes a window. No-op if absent.
func (a *appEntry) remove(windowID string) {
	if _, ok := a.windows[windowID]; !ok {
		return
	}
	delete(a.windows, windowID)
	for i, id := range a.order {
		if id == windowID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// window returns the entry for windowID, or nil.
func (a *appEntry) window(windowID string) *windowEntry {
	return a.windows[windowID]
}

// orderedWindows returns the app's window entries in discovery order.
func (a *appEntry) orderedWindows() []*windowEntry {
	out := make([]*windowEntry, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.windows[id])
	}
	return out
}

// recomputeStatus reduces the app's non-paused window statuses. Paused
// windows stay in the registry but do not influence the aggregate.
func (a *appEntry) recomputeStatus() {
	statuses := make([]DisplayStatus, 0, len(a.order))
	for _, w := range a.orderedWindows() {
		if w.paused {
			continue
		}
		statuses = append(statuses, w.status)
	}
	a.status = Reduce(statuses)
}

// statusSnapshot builds the immutable published view of the registry:
// discovery-ordered deep copies plus the global reduction over all apps.
func (r *registry) statusSnapshot(at time.Time) StatusSnapshot {
	apps := make([]AppInfo, 0, len(r.order))
	appStatuses := make([]DisplayStatus, 0, len(r.order))
	for _, pid := range r.order {
		a := r.apps[pid]
		info := AppInfo{
			PID:     a.pid,
			Name:    a.name,
			Status:  a.status,
			Windows: make([]WindowInfo, 0, len(a.order)),
		}
		for _, w := range a.orderedWindows() {
			info.Windows = append(info.Windows, WindowInfo{
				ID:           w.id,
				Title:        w.title,
				DocumentPath: w.documentPath,
				Paused:       w.paused,
				Status:       w.status,
			})
		}
		apps = append(apps, info)
		appStatuses = append(appStatuses, a.status)
	}
	return StatusSnapshot{
		Apps:   apps,
		Global: Reduce(appStatuses),
		At:     at,
	}
}
