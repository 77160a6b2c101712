package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/edgekv"
)

func TestZapLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Warn("edge get failed", edgekv.Fields{"key": "kv:default:a", "err": errors.New("boom")})
	l.Debug("no fields", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["key"] != "kv:default:a" || ctx["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", ctx)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level=%v", entries[0].Level)
	}
}
