// Package asynchook moves hook delivery off the read path.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	kv, _ := edgekv.New(edgekv.Options{
//	    Origin: store,
//	    Edge:   edge,
//	    Hooks:  hooks,
//	})
//
// Events are dropped when the queue is full; Dropped reports how many.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/edgekv"
)

type Hooks struct {
	inner   edgekv.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ edgekv.Hooks = (*Hooks)(nil)

func New(inner edgekv.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) EdgeUnavailable(k, op string, err error) {
	h.try(func() { h.inner.EdgeUnavailable(k, op, err) })
}
func (h *Hooks) EdgeSetRejected(k string, isList bool) {
	h.try(func() { h.inner.EdgeSetRejected(k, isList) })
}
func (h *Hooks) RefreshScheduled(k string, p float64) {
	h.try(func() { h.inner.RefreshScheduled(k, p) })
}
func (h *Hooks) RefreshSkipped(k, r string) { h.try(func() { h.inner.RefreshSkipped(k, r) }) }
func (h *Hooks) GenStoreError(k string, err error) {
	h.try(func() { h.inner.GenStoreError(k, err) })
}
