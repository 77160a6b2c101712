// Package zerolog adapts a zerolog.Logger to edgekv.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/edgekv"
)

var _ edgekv.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f edgekv.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f edgekv.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f edgekv.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f edgekv.Fields) { emit(z.L.Error(), msg, f) }

// emit tolerates a nil event, which zerolog returns for disabled levels.
func emit(e *zerolog.Event, msg string, f edgekv.Fields) {
	if e == nil {
		return
	}
	if len(f) > 0 {
		e = e.Fields(map[string]any(f))
	}
	e.Msg(msg)
}
