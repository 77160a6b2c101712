package edgekv

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/edgekv/internal/wire"
	"github.com/unkn0wn-root/edgekv/origin"
	"github.com/unkn0wn-root/edgekv/origin/memory"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

// ---- edge double ----

type memEdge struct {
	mu     sync.Mutex
	m      map[string][]byte
	ttl    map[string]time.Duration
	getErr error
	setErr error
	delErr error
	reject bool
}

func newMemEdge() *memEdge {
	return &memEdge{m: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (e *memEdge) Get(_ context.Context, k string) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.getErr != nil {
		return nil, false, e.getErr
	}
	b, ok := e.m[k]
	return b, ok, nil
}

func (e *memEdge) Set(_ context.Context, k string, v []byte, _ int64, ttl time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setErr != nil {
		return false, e.setErr
	}
	if e.reject {
		return false, nil
	}
	e.m[k] = append([]byte(nil), v...)
	e.ttl[k] = ttl
	return true, nil
}

func (e *memEdge) Del(_ context.Context, k string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.delErr != nil {
		return e.delErr
	}
	delete(e.m, k)
	return nil
}

func (e *memEdge) Close(context.Context) error { return nil }

func (e *memEdge) raw(k string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.m[k]
	return b, ok
}

func (e *memEdge) put(k string, b []byte) {
	e.mu.Lock()
	e.m[k] = b
	e.mu.Unlock()
}

func (e *memEdge) envelope(t *testing.T, k string) wire.Envelope {
	t.Helper()
	b, ok := e.raw(k)
	if !ok {
		t.Fatalf("edge has no entry for %q", k)
	}
	env, err := wire.Decode(b)
	if err != nil {
		t.Fatalf("edge entry %q: %v", k, err)
	}
	return env
}

// ---- origin double ----

type countingOrigin struct {
	*memory.Store

	mu      sync.Mutex
	gets    int
	lists   int
	fail    error
	failPut error
	// afterGet runs once, after the value was read and before it is returned.
	afterGet func()
	// gate, when set, holds reads until it is closed or the read's ctx ends.
	// entered receives one signal per held read.
	gate    chan struct{}
	entered chan struct{}
}

func (o *countingOrigin) GetWithMetadata(ctx context.Context, key string, opts origin.GetOptions) (*origin.Object, error) {
	o.mu.Lock()
	o.gets++
	fail, hook := o.fail, o.afterGet
	gate, entered := o.gate, o.entered
	o.afterGet = nil
	o.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	obj, err := o.Store.GetWithMetadata(ctx, key, opts)
	if hook != nil {
		hook()
	}
	return obj, err
}

func (o *countingOrigin) Put(ctx context.Context, key string, value io.Reader, opts origin.PutOptions) error {
	o.mu.Lock()
	fail := o.failPut
	o.mu.Unlock()
	if fail != nil {
		return fail
	}
	return o.Store.Put(ctx, key, value, opts)
}

func (o *countingOrigin) List(ctx context.Context, opts origin.ListOptions) (*origin.ListResult, error) {
	o.mu.Lock()
	o.lists++
	fail := o.fail
	o.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return o.Store.List(ctx, opts)
}

func (o *countingOrigin) counts() (gets, lists int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gets, o.lists
}

// ---- clock, rand, hooks, scheduler ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events []string
}

func (h *recHooks) add(e string) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(_, reason string)             { h.add("self_heal:" + reason) }
func (h *recHooks) EdgeUnavailable(_, op string, _ error) { h.add("edge_unavailable:" + op) }
func (h *recHooks) EdgeSetRejected(string, bool)          { h.add("edge_set_rejected") }
func (h *recHooks) RefreshScheduled(string, float64)      { h.add("refresh_scheduled") }
func (h *recHooks) RefreshSkipped(_, reason string)       { h.add("refresh_skipped:" + reason) }
func (h *recHooks) GenStoreError(string, error)           { h.add("genstore_error") }

func (h *recHooks) count(e string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, x := range h.events {
		if x == e {
			n++
		}
	}
	return n
}

type queued struct {
	name string
	t    scheduler.Task
}

// queueSched holds tasks until runAll.
type queueSched struct {
	mu    sync.Mutex
	tasks []queued
}

func (q *queueSched) Schedule(name string, t scheduler.Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, queued{name, t})
	q.mu.Unlock()
}

func (q *queueSched) count(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, x := range q.tasks {
		if x.name == name {
			n++
		}
	}
	return n
}

func (q *queueSched) runAll(t *testing.T) {
	t.Helper()
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		if err := next.t(context.Background()); err != nil {
			t.Fatalf("task %s: %v", next.name, err)
		}
	}
}

// ---- harness ----

type harness struct {
	kv     *KV
	edge   *memEdge
	origin *countingOrigin
	clock  *fakeClock
	hooks  *recHooks

	mu       sync.Mutex
	taskErrs []error
}

func newHarness(t *testing.T, mut ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		edge:   newMemEdge(),
		origin: &countingOrigin{Store: memory.New(0)},
		clock:  &fakeClock{t: time.Unix(1_700_000_000, 0)},
		hooks:  &recHooks{},
	}
	opts := Options{
		Origin: h.origin,
		Edge:   h.edge,
		Clock:  h.clock,
		Rand:   fixedRand(0.99),
		Hooks:  h.hooks,
		Scheduler: scheduler.Inline{OnError: func(_ string, err error) {
			h.mu.Lock()
			h.taskErrs = append(h.taskErrs, err)
			h.mu.Unlock()
		}},
	}
	for _, m := range mut {
		m(&opts)
	}
	kv, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close(context.Background()) })
	h.kv = kv
	return h
}

func (h *harness) errs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.taskErrs...)
}

func mustText(t *testing.T, v Value) string {
	t.Helper()
	s, err := v.Text()
	if err != nil {
		t.Fatalf("Text(): %v", err)
	}
	return s
}

func memoryStore() *memory.Store { return memory.New(0) }
