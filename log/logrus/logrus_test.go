package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/edgekv"
)

func TestLogrusLoggerWritesFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Info("refresh scheduled", edgekv.Fields{"key": "kv:default:a", "p": 0.5})

	e := hook.LastEntry()
	if e == nil {
		t.Fatal("no entry logged")
	}
	if e.Level != logrus.InfoLevel || e.Message != "refresh scheduled" {
		t.Fatalf("unexpected entry: %v %q", e.Level, e.Message)
	}
	if e.Data["key"] != "kv:default:a" || e.Data["p"] != 0.5 {
		t.Fatalf("unexpected data: %v", e.Data)
	}
}
