package docrender

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one compositor is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("compositor pool closed")

// CompositorPool manages Compositor instances for parallel rendering.
// Each compositor has its own browser, so concurrent renders never share a tab.
// Compositors are created lazily on first acquire to avoid startup delay.
type CompositorPool struct {
	size        int
	newFn       func() *Compositor
	compositors []*Compositor
	sem         chan *Compositor
	mu          sync.Mutex
	created     int
	closed      bool
}

// NewCompositorPool creates a pool with capacity for n compositors, each
// built with opts. Compositors are created when acquired, not here.
func NewCompositorPool(n int, opts ...CompositorOption) *CompositorPool {
	return newCompositorPool(n, func() *Compositor { return NewCompositor(opts...) })
}

func newCompositorPool(n int, newFn func() *Compositor) *CompositorPool {
	if n < 1 {
		n = 1
	}
	return &CompositorPool{
		size:        n,
		newFn:       newFn,
		compositors: make([]*Compositor, 0, n),
		sem:         make(chan *Compositor, n),
	}
}

// Acquire gets a compositor from the pool, creating one if needed.
// Blocks until one is released or ctx is done.
func (p *CompositorPool) Acquire(ctx context.Context) (*Compositor, error) {
	// Try to get an idle compositor (non-blocking)
	select {
	case c, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		// Create outside the lock; browser launch is deferred to first use anyway
		c := p.newFn()

		p.mu.Lock()
		p.compositors = append(p.compositors, c)
		p.mu.Unlock()

		return c, nil
	}
	p.mu.Unlock()

	// All compositors created, wait for one to be released
	select {
	case c, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a compositor to the pool.
// The lock is held while sending so Close cannot close the channel mid-send;
// the send never blocks since at most size compositors exist.
func (p *CompositorPool) Release(c *Compositor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sem <- c
}

// Compose acquires a compositor, renders html, and releases it.
func (p *CompositorPool) Compose(ctx context.Context, html string, page *PageSettings) ([]byte, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, &CompositionError{Err: err}
	}
	defer p.Release(c)

	return c.Compose(ctx, html, page)
}

// Close releases all browser resources.
// Returns an aggregated error if multiple compositors fail to close.
func (p *CompositorPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sem)
	compositors := p.compositors
	p.mu.Unlock()

	var errs []error
	for _, c := range compositors {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the pool capacity.
func (p *CompositorPool) Size() int {
	return p.size
}

// ResolvePoolSize determines the pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	// GOMAXPROCS is adjusted by automaxprocs for containers
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
