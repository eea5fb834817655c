package transportfake

import (
	"context"
	"sync"
)

// Gate holds calls to an Op until released, so tests can observe what the
// client does while a request is in flight.
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

// Hold installs a gate on op. Every call to op blocks until Release.
func (b *Backend) Hold(op Op) *Gate {
	g := &Gate{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.gates[op] = g
	return g
}

// Entered is closed once the first call reaches the gate.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

func (g *Gate) wait(ctx context.Context) error {
	g.enterOnce.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
