package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twistedxcom/vigil/internal/logging"
	"github.com/twistedxcom/vigil/internal/syncx"
)

var engineLog = logging.ForComponent(logging.CompEngine)

// ErrUnknownWindow is returned by SetPaused for an app/window id the
// registry does not track.
var ErrUnknownWindow = errors.New("unknown window")

// publishKey is the single debounce key shared by all status recomputes,
// so near-simultaneous window changes collapse into one published update.
const publishKey = "status"

// Config holds the engine's tuning knobs.
type Config struct {
	// PollInterval is the time between snapshot polls (default: 500ms).
	PollInterval time.Duration

	// DebounceDelay gates publishes: long enough to absorb polling
	// jitter, short enough to stay perceptibly responsive
	// (default: 250ms).
	DebounceDelay time.Duration

	// ActiveRecency is the classifier's recency threshold for the active
	// status (default: 2s).
	ActiveRecency time.Duration

	// Progress is the optional beneficial-progress heuristic handed to
	// the classifier.
	Progress func(prev, cur string) bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = 250 * time.Millisecond
	}
	if c.ActiveRecency <= 0 {
		c.ActiveRecency = 2 * time.Second
	}
	return c
}

// Engine orchestrates the poll loop: it pulls observation sets from the
// snapshot source, classifies every window, maintains the registry, and
// publishes debounced aggregates through the Publisher.
//
// The engine is the registry's single writer. Ticks and external commands
// (SetPaused) are serialized on one mutex, so the registry itself needs
// no locking.
type Engine struct {
	cfg       Config
	source    Source
	publisher *Publisher

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	debounce *syncx.Debouncer
	reg      *registry
	last     StatusSnapshot
}

// New creates an Engine polling source and publishing through pub.
func New(cfg Config, source Source, pub *Publisher) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		source:    source,
		publisher: pub,
		reg:       newRegistry(),
		last:      StatusSnapshot{Global: StatusNotRunning},
	}
}

// Publisher returns the engine's publisher for subscription and reads.
func (e *Engine) Publisher() *Publisher {
	return e.publisher
}

// IsRunning reports whether the poll loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Current returns the latest published snapshot.
func (e *Engine) Current() StatusSnapshot {
	return e.publisher.Current()
}

// Start launches the poll loop. Idempotent: returns false without side
// effects if the engine is already running.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.debounce = syncx.NewDebouncer(e.cfg.DebounceDelay)
	e.running = true

	go e.loop(ctx, e.done, e.debounce)

	engineLog.Info("engine_started",
		slog.Duration("poll_interval", e.cfg.PollInterval),
		slog.Duration("debounce", e.cfg.DebounceDelay),
	)
	return true
}

// Stop cancels the poll loop and any pending debounced publish, then
// waits for both to wind down. After Stop returns, no further listener
// callbacks occur. Idempotent: returns false if not running.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	e.running = false
	e.cancel()
	deb := e.debounce
	done := e.done
	e.mu.Unlock()

	// Drop the pending publish first, then wait for the loop. An in-flight
	// snapshot call is allowed to complete; its result is discarded by the
	// running check inside tick.
	deb.Stop()
	<-done

	engineLog.Info("engine_stopped")
	return true
}

func (e *Engine) loop(ctx context.Context, done chan struct{}, deb *syncx.Debouncer) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.tick(ctx, deb, done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, deb, done)
		}
	}
}

// tick performs one poll cycle. Collaborator I/O happens outside the
// engine lock; the loop is the only caller within one incarnation, so
// ticks never overlap. Failures are logged and absorbed: the loop runs
// indefinitely across transient source errors. A flapping source is
// warned once per consecutive-failure streak; the rest of the streak is
// folded into the aggregator.
func (e *Engine) tick(ctx context.Context, deb *syncx.Debouncer, done chan struct{}) {
	snaps, err := e.source.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if logging.AggregateStreak(logging.CompEngine, "snapshot_source_failed",
			slog.String("error", err.Error())) {
			engineLog.Warn("snapshot_source_failed", slog.String("error", err.Error()))
		}
		return
	}
	if failed := logging.EndStreak(logging.CompEngine, "snapshot_source_failed"); failed > 0 {
		engineLog.Info("snapshot_source_recovered", slog.Int64("failed_ticks", failed))
	}

	now := time.Now()

	e.mu.Lock()
	if !e.running || e.done != done {
		// Stopped, or the engine was restarted while this tick awaited the
		// source. Either way the result belongs to a dead incarnation.
		e.mu.Unlock()
		return
	}

	e.applyLocked(snaps, now)
	snap := e.reg.statusSnapshot(now)
	changed := !equalStatus(snap, e.last)
	if changed {
		e.last = snap
	}
	e.mu.Unlock()

	if changed {
		deb.Call(publishKey, e.publishLatest)
	}
}

// publishLatest delivers the most recently accepted aggregate. The
// snapshot is read at fire time rather than captured when the publish was
// scheduled: tick and SetPaused release e.mu before calling deb.Call, so
// their Call order is not guaranteed to match the order their snapshots
// were computed in. Re-reading e.last means whichever Call fires last
// still delivers the newest state.
func (e *Engine) publishLatest() {
	e.mu.Lock()
	snap := e.last
	e.mu.Unlock()
	e.publisher.Publish(snap)
}

// applyLocked folds one observation set into the registry: classify every
// readable window, drop windows and apps the source stopped reporting,
// and recompute app aggregates. Caller holds e.mu.
func (e *Engine) applyLocked(snaps []AppSnapshot, now time.Time) {
	rules := Rules{ActiveRecency: e.cfg.ActiveRecency, Progress: e.cfg.Progress}

	seenApps := make(map[int]bool, len(snaps))
	for _, as := range snaps {
		seenApps[as.PID] = true
		app := e.reg.upsertApp(as.PID, as.Name)

		seenWindows := make(map[string]bool, len(as.Windows))
		for _, ws := range as.Windows {
			seenWindows[ws.ID] = true
			prev := app.window(ws.ID)

			if ws.Unreadable {
				// Stale but valid: keep whatever we knew. An unreadable
				// first observation has nothing to keep and is skipped.
				if prev == nil {
					logging.Aggregate(logging.CompEngine, "window_unreadable_unknown",
						slog.String("window", ws.ID))
				} else {
					logging.Aggregate(logging.CompEngine, "window_unreadable",
						slog.String("window", ws.ID))
				}
				continue
			}

			if prev == nil {
				app.upsert(&windowEntry{
					id:           ws.ID,
					title:        ws.Title,
					documentPath: ws.DocumentPath,
					status:       Classify(nil, ws, 0, rules),
					lastSnapshot: ws,
					observedAt:   now,
				})
				continue
			}

			prev.title = ws.Title
			prev.documentPath = ws.DocumentPath
			if prev.paused {
				// Paused windows are tracked but not classified; their
				// stored status resumes mattering once unpaused.
				prev.lastSnapshot = ws
				prev.observedAt = now
				continue
			}
			prevSnap := prev.lastSnapshot
			prev.status = Classify(&prevSnap, ws, now.Sub(prev.observedAt), rules)
			prev.lastSnapshot = ws
			prev.observedAt = now
		}

		for _, w := range app.orderedWindows() {
			if !seenWindows[w.id] {
				app.remove(w.id)
			}
		}
		app.recomputeStatus()
	}

	for _, pid := range e.reg.pids() {
		if !seenApps[pid] {
			e.reg.removeApp(pid)
		}
	}
}

// SetPaused marks a window paused or resumed. Paused windows stay in the
// registry but are skipped by classification and excluded from aggregate
// reduction. Returns ErrUnknownWindow (wrapped) for ids the registry does
// not track; other windows are unaffected either way.
func (e *Engine) SetPaused(pid int, windowID string, paused bool) error {
	e.mu.Lock()
	app := e.reg.app(pid)
	if app == nil {
		e.mu.Unlock()
		return fmt.Errorf("app %d: %w", pid, ErrUnknownWindow)
	}
	w := app.window(windowID)
	if w == nil {
		e.mu.Unlock()
		return fmt.Errorf("app %d window %q: %w", pid, windowID, ErrUnknownWindow)
	}
	w.paused = paused
	app.recomputeStatus()

	now := time.Now()
	snap := e.reg.statusSnapshot(now)
	changed := !equalStatus(snap, e.last)
	if changed {
		e.last = snap
	}
	deb := e.debounce
	running := e.running
	e.mu.Unlock()

	if changed && running {
		deb.Call(publishKey, e.publishLatest)
	}
	return nil
}
