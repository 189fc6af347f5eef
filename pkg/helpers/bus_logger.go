package helpers

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// BusLogger writes the event bus's own logs to zerolog. Watermill logs every delivered
// message, so its levels are shifted down one step; errors stay errors.
type BusLogger struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = &BusLogger{}

// NewBusLogger tags every entry with component.
func NewBusLogger(logger zerolog.Logger, component string) *BusLogger {
	return &BusLogger{logger: logger.With().Str("component", component).Logger()}
}

func busLevel(l watermill.LogLevel) zerolog.Level {
	switch l {
	case watermill.ErrorLogLevel:
		return zerolog.ErrorLevel
	case watermill.InfoLogLevel:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func (b *BusLogger) emit(l watermill.LogLevel, msg string, err error, fields watermill.LogFields) {
	ev := b.logger.WithLevel(busLevel(l))
	if len(fields) > 0 {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func (b *BusLogger) Error(msg string, err error, fields watermill.LogFields) {
	b.emit(watermill.ErrorLogLevel, msg, err, fields)
}

func (b *BusLogger) Info(msg string, fields watermill.LogFields) {
	b.emit(watermill.InfoLogLevel, msg, nil, fields)
}

func (b *BusLogger) Debug(msg string, fields watermill.LogFields) {
	b.emit(watermill.DebugLogLevel, msg, nil, fields)
}

func (b *BusLogger) Trace(msg string, fields watermill.LogFields) {
	b.emit(watermill.TraceLogLevel, msg, nil, fields)
}

func (b *BusLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &BusLogger{logger: b.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
