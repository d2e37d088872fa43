package observability

import (
	"github.com/rs/zerolog"
)

// KafkaLogger adapts zerolog to the kafka-go client's Logger interface,
// a single Printf method. The client has no notion of levels, so each
// adapter instance logs at the fixed level chosen at construction; wire
// one at error level into the client's ErrorLogger slot.
type KafkaLogger struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewKafkaLogger creates a KafkaLogger that delegates to the given
// zerolog.Logger at the given level, automatically adding a
// "component":"kafka" field.
func NewKafkaLogger(logger zerolog.Logger, level zerolog.Level) *KafkaLogger {
	return &KafkaLogger{
		logger: logger.With().Str("component", "kafka").Logger(),
		level:  level,
	}
}

// Printf logs one client message at the configured level.
func (l *KafkaLogger) Printf(msg string, args ...interface{}) {
	l.logger.WithLevel(l.level).Msgf(msg, args...)
}
