package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// aggregateKey uniquely identifies an event type for batching.
type aggregateKey struct {
	Component string
	Event     string
}

// aggregateEntry tracks a batched event's count and last-seen fields.
type aggregateEntry struct {
	Count  int64
	Fields []slog.Attr
}

// Aggregator batches high-frequency events and emits one summary line per
// event type per flush interval, so a flapping collaborator cannot
// generate a log storm. It also tracks consecutive-occurrence streaks:
// the first occurrence of a streak bypasses batching entirely (the caller
// logs it at full severity), and the streak's length is reported back when
// it ends. The monitor engine uses this for per-tick snapshot failures.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[aggregateKey]*aggregateEntry
	streaks map[aggregateKey]int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator that flushes every intervalSecs
// seconds. If logger is nil, recorded events are silently dropped.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		entries:  make(map[aggregateKey]*aggregateEntry),
		streaks:  make(map[aggregateKey]int64),
		done:     make(chan struct{}),
	}
}

// Start begins the background flush goroutine.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.flushLoop()
}

// Stop flushes remaining entries and stops the background goroutine.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
	a.flush()
}

// Record increments the counter for an event type. Fields are kept from
// the most recent call (last-writer-wins for context).
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLocked(aggregateKey{Component: component, Event: event}, fields)
}

func (a *Aggregator) recordLocked(key aggregateKey, fields []slog.Attr) {
	entry, ok := a.entries[key]
	if !ok {
		entry = &aggregateEntry{}
		a.entries[key] = entry
	}
	entry.Count++
	if len(fields) > 0 {
		entry.Fields = fields
	}
}

// RecordStreak records one occurrence of a consecutive-event streak.
// Returns true for the first occurrence, which is NOT batched: the caller
// should log it directly at full severity. Every later occurrence in the
// same streak is folded into the flush summary. Streaks survive flushes
// and end only through EndStreak.
func (a *Aggregator) RecordStreak(component, event string, fields ...slog.Attr) bool {
	key := aggregateKey{Component: component, Event: event}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streaks[key]++
	if a.streaks[key] == 1 {
		return true
	}
	a.recordLocked(key, fields)
	return false
}

// EndStreak closes a streak and returns how many occurrences it saw,
// including the first. Returns zero when no streak is open.
func (a *Aggregator) EndStreak(component, event string) int64 {
	key := aggregateKey{Component: component, Event: event}
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.streaks[key]
	delete(a.streaks, key)
	return n
}

func (a *Aggregator) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.entries) == 0 {
		a.mu.Unlock()
		return
	}
	entries := a.entries
	a.entries = make(map[aggregateKey]*aggregateEntry)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	// Stable output order keeps summaries greppable across flushes.
	keys := make([]aggregateKey, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Component != keys[j].Component {
			return keys[i].Component < keys[j].Component
		}
		return keys[i].Event < keys[j].Event
	})

	for _, key := range keys {
		entry := entries[key]
		attrs := []any{
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", entry.Count),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range entry.Fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
