package hostlog

import (
	"go.uber.org/zap"

	"github.com/jvs-project/syncbridge/pkg/logging"
)

// ZapSink writes host log lines through a zap-backed logger. It is the
// sink on hosts without os_log.
type ZapSink struct {
	logger *logging.Logger
}

// NewZapSink creates a sink on logger. A nil logger follows the global one,
// resolved on every write.
func NewZapSink(logger *logging.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Write(c Category, level Level, msg string) {
	logger := s.logger
	if logger == nil {
		logger = logging.L()
	}
	z := logger.Zap().Named(c.Subsystem)
	fields := []zap.Field{zap.String("category", c.Name), zap.String("os_log_type", level.String())}
	switch level {
	case LevelDebug:
		z.Debug(msg, fields...)
	case LevelInfo, LevelDefault:
		z.Info(msg, fields...)
	case LevelError, LevelFault:
		z.Error(msg, fields...)
	}
}
