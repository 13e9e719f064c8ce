// Package realtime paces a simulation clock against wall time. Each wall
// tick advances the wrapped clock by a fixed slice of virtual time, so the
// registry semantics stay exactly those of the sim package; only the rate at
// which slices are consumed is tied to a time.Ticker.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tempuslab/tempus/sim"
)

const defaultTickRate = 10 * time.Millisecond

// A Pacer drives one sim.Clock at a wall-time rate. Scale is the ratio of
// virtual time to wall time: with Scale 2, one wall second advances the
// clock by two virtual seconds.
type Pacer struct {
	clock    *sim.Clock
	tickRate time.Duration
	scale    float64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// PacerBuilder is a builder for Pacer.
type PacerBuilder struct {
	clock    *sim.Clock
	tickRate time.Duration
	scale    float64
}

// WithClock defines the clock to pace.
func (b PacerBuilder) WithClock(c *sim.Clock) PacerBuilder {
	b.clock = c
	return b
}

// WithTickRate defines the wall interval between slices.
func (b PacerBuilder) WithTickRate(d time.Duration) PacerBuilder {
	b.tickRate = d
	return b
}

// WithScale defines the virtual-to-wall time ratio.
func (b PacerBuilder) WithScale(s float64) PacerBuilder {
	b.scale = s
	return b
}

// Build builds a new Pacer.
func (b PacerBuilder) Build() *Pacer {
	if b.tickRate <= 0 {
		b.tickRate = defaultTickRate
	}
	if b.scale <= 0 {
		b.scale = 1
	}

	return &Pacer{
		clock:    b.clock,
		tickRate: b.tickRate,
		scale:    b.scale,
	}
}

// Clock returns the paced clock.
func (p *Pacer) Clock() *sim.Clock {
	return p.clock
}

// Start begins consuming virtual time. It returns immediately; the pacing
// loop runs until Stop is called or ctx is cancelled.
func (p *Pacer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.New("pacer already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.lastErr = nil

	go p.loop(ctx, p.done)

	return nil
}

// Stop halts the pacing loop, waits for the in-flight slice to finish, and
// returns the first error the loop hit, if any. The clock keeps its state
// and can be started again.
func (p *Pacer) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return errors.New("pacer not started")
	}

	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastErr
}

// Running reports whether the pacing loop is active.
func (p *Pacer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cancel != nil
}

func (p *Pacer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.tickRate)
	defer ticker.Stop()

	slice := sim.VTime(p.scale * p.tickRate.Seconds())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.clock.Run(slice); err != nil {
				p.mu.Lock()
				if p.lastErr == nil {
					p.lastErr = err
				}
				p.mu.Unlock()

				return
			}
		}
	}
}
