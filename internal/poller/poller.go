// Package poller runs a function on a fixed interval, bound to a context.
package poller

import (
	"context"
	"log"
	"sync"
	"time"
)

// Func is one poll. Errors are reported to tick callbacks and logged.
type Func func(ctx context.Context) error

// Poller runs Func immediately on Start and then every interval until the
// context is cancelled or Stop is called.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func

	mu        sync.Mutex
	callbacks []func(at time.Time, err error)
	cancel    context.CancelFunc
	stopped   bool

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a poller. A non-positive interval falls back to one second.
func New(name string, interval time.Duration, fn Func) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

// OnTick registers a callback invoked after every poll with its result.
func (p *Poller) OnTick(cb func(at time.Time, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// Start begins polling. Calling Start more than once, or after Stop, has no
// effect.
func (p *Poller) Start(parent context.Context) {
	p.startOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stopped {
			return
		}
		ctx, cancel := context.WithCancel(parent)
		p.cancel = cancel

		p.wg.Add(1)
		go p.loop(ctx)
	})
}

// Stop cancels polling and waits for an in-flight poll to return.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.wg.Wait()
	})
}

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := p.fn(ctx)
	if err != nil && ctx.Err() == nil {
		log.Printf("poller %s: %v", p.name, err)
	}

	p.mu.Lock()
	cbs := append([]func(time.Time, error){}, p.callbacks...)
	p.mu.Unlock()

	now := time.Now()
	for _, cb := range cbs {
		cb(now, err)
	}
}
