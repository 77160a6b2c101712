package edgekv

// Fields carries structured context for a log line.
type Fields map[string]any

// Logger receives the engine's own diagnostics: edge failures, dropped
// refreshes and failed background tasks. Adapters for zap, logrus, zerolog
// and slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything; it is the default.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
