// Package sloghook logs edgekv hook events with log/slog.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/edgekv"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery         uint64
	RefreshScheduledEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	refreshCtr  atomic.Uint64
}

var _ edgekv.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("edgekv.self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) EdgeUnavailable(storageKey, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("edgekv.edge_unavailable", "key", h.redact(storageKey), "op", op, "err", err)
}

func (h *Hooks) EdgeSetRejected(storageKey string, isList bool) {
	if h.l == nil {
		return
	}
	h.l.Warn("edgekv.edge_set_rejected", "key", h.redact(storageKey), "is_list", isList)
}

func (h *Hooks) RefreshScheduled(storageKey string, p float64) {
	if h.l == nil || !sample(h.opts.RefreshScheduledEvery, &h.refreshCtr) {
		return
	}
	h.l.Debug("edgekv.refresh_scheduled", "key", h.redact(storageKey), "p", p)
}

func (h *Hooks) RefreshSkipped(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("edgekv.refresh_skipped", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) GenStoreError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("edgekv.genstore_error", "key", h.redact(storageKey), "err", err)
}
