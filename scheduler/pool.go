package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type PoolOptions struct {
	Workers int // default 4
	Queue   int // default 1024
	// TaskTimeout bounds each task; 0 means no limit.
	TaskTimeout time.Duration
	OnError     ErrorHandler
}

// Pool runs tasks on a fixed set of workers. When the queue is full the task
// runs on its own goroutine instead of being dropped; Close waits for those too.
// Tasks scheduled after Close run synchronously.
type Pool struct {
	q       chan named
	opts    PoolOptions
	base    context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	extra   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	once   sync.Once

	overflow atomic.Uint64
	pending  atomic.Int64
}

type named struct {
	name string
	t    Task
}

var _ Scheduler = (*Pool)(nil)

func NewPool(opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Queue <= 0 {
		opts.Queue = 1024
	}
	base, cancel := context.WithCancel(context.Background())
	p := &Pool{q: make(chan named, opts.Queue), opts: opts, base: base, cancel: cancel}
	p.workers.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer p.workers.Done()
			for n := range p.q {
				p.exec(n)
			}
		}()
	}
	return p
}

func (p *Pool) exec(n named) {
	defer p.pending.Add(-1)
	ctx := p.base
	if p.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TaskTimeout)
		defer cancel()
	}
	report(p.opts.OnError, n.name, run(ctx, n.t))
}

func (p *Pool) Schedule(name string, t Task) {
	n := named{name: name, t: t}
	p.pending.Add(1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.exec(n)
		return
	}
	select {
	case p.q <- n:
	default:
		p.overflow.Add(1)
		p.extra.Add(1)
		go func() {
			defer p.extra.Done()
			p.exec(n)
		}()
	}
	p.mu.RUnlock()
}

// Pending reports tasks scheduled but not yet finished.
func (p *Pool) Pending() int64 { return p.pending.Load() }

// Overflowed reports how many tasks ran outside the worker set.
func (p *Pool) Overflowed() uint64 { return p.overflow.Load() }

// Close stops accepting queued work and waits for every scheduled task.
// If ctx ends first, running tasks see their context cancelled and Close
// returns ctx.Err() without waiting further.
func (p *Pool) Close(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.q)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		p.extra.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
