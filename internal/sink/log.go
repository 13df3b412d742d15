package sink

import "github.com/rileyhilliard/upsmon/internal/logger"

// Log writes every value to a logger instead of a control system.
type Log struct {
	log logger.Logger
}

// NewLog returns a sink that logs at info level.
func NewLog(log logger.Logger) *Log {
	if log == nil {
		log = logger.Noop()
	}
	return &Log{log: log}
}

func (l *Log) Put(channel string, value int) error {
	l.log.Info("put %s = %d", channel, value)
	return nil
}

func (l *Log) Close() error {
	return nil
}
