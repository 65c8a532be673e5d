package syncx

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_BurstRunsLastActionOnce(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	var calls int32
	var last atomic.Int32
	for i := 1; i <= 10; i++ {
		i := i
		d.Call("k", func() {
			atomic.AddInt32(&calls, 1)
			last.Store(int32(i))
		})
	}

	time.Sleep(200 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", got)
	}
	if got := last.Load(); got != 10 {
		t.Fatalf("expected last action (10) to win, got %d", got)
	}
}

func TestDebouncer_KeysAreIsolated(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var a, b int32
	d.Call("a", func() { atomic.AddInt32(&a, 1) })
	d.Call("b", func() { atomic.AddInt32(&b, 1) })

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&a) != 1 || atomic.LoadInt32(&b) != 1 {
		t.Fatalf("expected both keys to fire once, got a=%d b=%d", a, b)
	}
}

func TestDebouncer_ZeroDelayIsStillAsynchronous(t *testing.T) {
	d := NewDebouncer(0)
	defer d.Stop()

	var ran atomic.Bool
	done := make(chan struct{})
	d.Call("k", func() {
		ran.Store(true)
		close(done)
	})
	// Must not have executed synchronously inside Call. This is inherently
	// racy in the failing direction only: a synchronous bug always trips it.
	if ran.Load() {
		t.Fatal("action executed synchronously inside Call")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero-delay action never fired")
	}
}

func TestDebouncer_CancelPreventsExecution(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var ran atomic.Bool
	d.Call("k", func() { ran.Store(true) })
	d.Cancel("k")

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled action still executed")
	}
	if d.Pending("k") {
		t.Fatal("key still pending after Cancel")
	}
}

func TestDebouncer_StopPreventsPendingAndFutureCalls(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var ran atomic.Bool
	d.Call("k", func() { ran.Store(true) })
	d.Stop()
	d.Call("k", func() { ran.Store(true) })

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Fatal("action executed after Stop")
	}
}

// Stop must wait for an action that already started before returning.
func TestDebouncer_StopWaitsForInFlightAction(t *testing.T) {
	d := NewDebouncer(time.Millisecond)

	started := make(chan struct{})
	var finished atomic.Bool
	d.Call("k", func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	d.Stop()
	if !finished.Load() {
		t.Fatal("Stop returned while action still running")
	}
}

func TestDebouncer_ConcurrentCallsOneExecution(t *testing.T) {
	d := NewDebouncer(40 * time.Millisecond)
	defer d.Stop()

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Call("k", func() { atomic.AddInt32(&calls, 1) })
		}()
	}
	wg.Wait()

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 execution from concurrent burst, got %d", got)
	}
}
