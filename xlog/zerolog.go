package xlog

import "github.com/rs/zerolog"

// ZerologLogger adapts Logger onto a real github.com/rs/zerolog.Logger,
// grounded on the pack's logiface-zerolog adapter submodule (whose whole
// purpose is bridging a thin logging facade onto zerolog).
type ZerologLogger struct {
	base  zerolog.Logger
	level Level
}

// NewZerologLogger wraps base, logging only entries at or above minLevel.
func NewZerologLogger(base zerolog.Logger, minLevel Level) *ZerologLogger {
	return &ZerologLogger{base: base, level: minLevel}
}

func (z *ZerologLogger) Enabled(l Level) bool {
	return l >= z.level
}

func (z *ZerologLogger) Log(e Entry) {
	if !z.Enabled(e.Level) {
		return
	}
	var ev *zerolog.Event
	switch e.Level {
	case Debug:
		ev = z.base.Debug()
	case Info:
		ev = z.base.Info()
	case Warn:
		ev = z.base.Warn()
	default:
		ev = z.base.Error()
	}
	if e.Component != "" {
		ev = ev.Str("component", e.Component)
	}
	if e.WorkerID != 0 {
		ev = ev.Int("worker_id", e.WorkerID)
	}
	if e.FD != 0 {
		ev = ev.Int("fd", e.FD)
	}
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg(e.Message)
}
