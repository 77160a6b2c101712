package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/edgekv"
)

type recorder struct {
	edgekv.NopHooks
	mu    sync.Mutex
	heals []string
	block chan struct{}
}

func (r *recorder) SelfHeal(k, reason string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.heals = append(r.heals, k+"/"+reason)
	r.mu.Unlock()
}

func TestDeliversBeforeClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 2, 16)
	for i := 0; i < 10; i++ {
		h.SelfHeal("kv:default:a", "corrupt")
	}
	h.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.heals) != 10 {
		t.Fatalf("delivered=%d want 10", len(rec.heals))
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped=%d want 0", h.Dropped())
	}
}

func TestDropsWhenFullAndAfterClose(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	h := New(rec, 1, 1)

	// one event is held by the worker, one sits in the queue, the rest drop
	for i := 0; i < 10; i++ {
		h.SelfHeal("k", "corrupt")
	}
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a full queue")
	}
	close(rec.block)
	h.Close()

	before := h.Dropped()
	h.SelfHeal("k", "corrupt")
	if h.Dropped() != before+1 {
		t.Fatalf("event after Close was not counted as dropped")
	}
	h.Close()
}
