package syncx

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls per key into a single deferred
// execution. A new Call for a key supersedes any pending action for that
// key: the superseded action never runs, and the delay restarts from the
// most recent call. Independent keys never interfere with each other.
//
// Actions always run on a timer goroutine, never synchronously inside
// Call, even with a zero delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	stopped bool
	gen     map[string]uint64
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewDebouncer returns a Debouncer that fires an action once delay has
// elapsed with no further Call for the same key.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		gen:    make(map[string]uint64),
		timers: make(map[string]*time.Timer),
	}
}

// Call schedules fn to run after the debounce delay. If an action is
// already pending for key it is cancelled; fn from the last call in a
// burst is the one that executes, exactly once.
func (d *Debouncer) Call(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.gen[key]++
	g := d.gen[key]

	// The generation check below is what makes cancellation reliable:
	// Timer.Stop can miss a timer whose function already started, but a
	// stale generation never gets past the gate.
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.gen[key] != g {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.wg.Add(1)
		d.mu.Unlock()
		defer d.wg.Done()
		fn()
	})
}

// Cancel drops any pending action for key without running it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
	d.gen[key]++
}

// Pending reports whether an action is currently scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Stop cancels every pending action and waits for any action that already
// started to finish. After Stop returns no action will run and further
// Call invocations are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
