// Package source provides snapshot source implementations and decorators
// for the monitor engine.
package source

import (
	"context"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/twistedxcom/vigil/internal/monitor"
)

// Guarded wraps an expensive snapshot source with two protections:
// concurrent captures are deduplicated via singleflight (overlapping
// callers share one result), and capture frequency is bounded by a rate
// limiter so a tight poll loop cannot overload the collaborator.
type Guarded struct {
	inner   monitor.Source
	sf      singleflight.Group
	limiter *rate.Limiter
}

// NewGuarded wraps inner. capturesPerSec bounds the capture rate; zero or
// negative disables rate limiting (dedup still applies).
func NewGuarded(inner monitor.Source, capturesPerSec float64) *Guarded {
	g := &Guarded{inner: inner}
	if capturesPerSec > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(capturesPerSec), 1)
	}
	return g
}

func (g *Guarded) Snapshot(ctx context.Context) ([]monitor.AppSnapshot, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	v, err, _ := g.sf.Do("snapshot", func() (interface{}, error) {
		return g.inner.Snapshot(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]monitor.AppSnapshot), nil
}
