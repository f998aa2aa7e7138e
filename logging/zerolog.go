package logging

import (
	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
// The service binary uses this so the estimators' checkpoint logging
// lands in the same structured stream as the HTTP layer.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

func (z *ZerologLogger) event(ev *zerolog.Event, msg string, fields ...Fields) {
	for _, f := range fields {
		ev = ev.Fields(map[string]any(f))
	}
	ev.Msg(msg)
}

func (z *ZerologLogger) Debug(msg string, fields ...Fields) {
	z.event(z.zl.Debug(), msg, fields...)
}

func (z *ZerologLogger) Info(msg string, fields ...Fields) {
	z.event(z.zl.Info(), msg, fields...)
}

func (z *ZerologLogger) Warn(msg string, fields ...Fields) {
	z.event(z.zl.Warn(), msg, fields...)
}

func (z *ZerologLogger) Error(err error, msg string, fields ...Fields) {
	z.event(z.zl.Error().Err(err), msg, fields...)
}

func (z *ZerologLogger) WithFields(fields Fields) Logger {
	ctx := z.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

func (z *ZerologLogger) SetLevel(level Level) {
	var zlevel zerolog.Level
	switch level {
	case DebugLevel:
		zlevel = zerolog.DebugLevel
	case InfoLevel:
		zlevel = zerolog.InfoLevel
	case WarnLevel:
		zlevel = zerolog.WarnLevel
	case ErrorLevel:
		zlevel = zerolog.ErrorLevel
	default:
		zlevel = zerolog.InfoLevel
	}
	z.zl = z.zl.Level(zlevel)
}
