package pipeline

import (
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

// Session is the per-run loop state: when it started and how many frames were processed.
type Session struct {
	ID        string
	start     time.Time
	processed int
}

func NewSession(start time.Time) *Session {
	return &Session{ID: uuid.NewString(), start: start}
}

// Tick counts one processed frame and returns the new total.
func (s *Session) Tick() int {
	s.processed++
	return s.processed
}

func (s *Session) Processed() int {
	return s.processed
}

func (s *Session) Start() time.Time {
	return s.start
}

// FPS is processed frames over wall time since the session started.
func (s *Session) FPS(now time.Time) float64 {
	elapsed := now.Sub(s.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.processed) / elapsed
}

// prefixLog tags every message with the session
type prefixLog struct {
	log    logs.Log
	prefix string
}

func newPrefixLog(log logs.Log, prefix string) *prefixLog {
	return &prefixLog{log: log, prefix: prefix + " "}
}

func (l *prefixLog) Close() {
	l.log.Close()
}

func (l *prefixLog) Debugf(format string, a ...interface{}) {
	l.log.Debugf(l.prefix+format, a...)
}

func (l *prefixLog) Infof(format string, a ...interface{}) {
	l.log.Infof(l.prefix+format, a...)
}

func (l *prefixLog) Warnf(format string, a ...interface{}) {
	l.log.Warnf(l.prefix+format, a...)
}

func (l *prefixLog) Errorf(format string, a ...interface{}) {
	l.log.Errorf(l.prefix+format, a...)
}

func (l *prefixLog) Criticalf(format string, a ...interface{}) {
	l.log.Criticalf(l.prefix+format, a...)
}
