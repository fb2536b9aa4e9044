// Package proclog is the processing log: the sink that receives native
// diagnostics and per-feature failure notices.
package proclog

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity of a processing log entry.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets entries serialize the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sink receives processing log entries.
type Sink interface {
	Append(severity Severity, message string)
}

// Entry is one recorded log line.
type Entry struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Log forwards entries to a zap logger and keeps them in memory so a batch
// can report what happened.
type Log struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
}

// New creates a processing log on top of logger. A nil logger discards
// output but still records entries.
func New(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("processing")}
}

// Append implements Sink.
func (l *Log) Append(severity Severity, message string) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Time: time.Now(), Severity: severity, Message: message})
	l.mu.Unlock()

	switch severity {
	case Error:
		l.logger.Error(message)
	default:
		l.logger.Warn(message)
	}
}

// Entries returns a copy of the recorded entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns the number of entries with the given severity.
func (l *Log) Count(severity Severity) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

// Reset drops the recorded entries.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(Severity, string) {}
