package vm

import (
	"context"
	"sync"
	"time"
)

// AcquireTimeout bounds how long Acquire waits for a free VM.
const AcquireTimeout = 5 * time.Second

// Pool manages a pool of reusable VMs
type Pool struct {
	policy Policy
	config Config
	vms    chan *VM
	size   int
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewPool creates a VM pool
func NewPool(policy Policy, config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		policy: policy,
		config: config,
		vms:    make(chan *VM, size),
		size:   size,
		done:   make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		vm, err := New(policy, config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.vms <- vm
	}

	return pool, nil
}

// Acquire gets a VM from the pool. It waits without holding the pool lock,
// so Close wakes waiters instead of queueing behind them.
func (p *Pool) Acquire(ctx context.Context) (*VM, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case vm := <-p.vms:
		return p.hand(vm)
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	}
}

// hand gives out vm unless Close won the race for it.
func (p *Pool) hand(vm *VM) (*VM, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		vm.Close()
		return nil, ErrPoolClosed
	}
	return vm, nil
}

// Release resets a VM and returns it to the pool
func (p *Pool) Release(vm *VM) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return vm.Close()
	}

	if err := vm.Reset(); err != nil {
		vm.Close()
		// Replace it so the pool keeps its size
		if fresh, err := New(p.policy, p.config); err == nil {
			p.vms <- fresh
		}
		return err
	}

	select {
	case p.vms <- vm:
		return nil
	default:
		return vm.Close()
	}
}

// Execute runs script on a pooled VM
func (p *Pool) Execute(ctx context.Context, script string) (*Result, error) {
	vm, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(vm)

	return vm.Execute(ctx, script)
}

// Close closes the pool and all idle VMs. VMs still held are closed by
// Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.done)

	for {
		select {
		case vm := <-p.vms:
			vm.Close()
		default:
			return nil
		}
	}
}

// PoolStats describes pool occupancy.
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.vms),
		InUse:     p.size - len(p.vms),
		Closed:    p.closed,
	}
}
