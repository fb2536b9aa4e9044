// Package lwgeom binds liblwgeom, the PostGIS geometry library, at run time.
//
// The shared library is loaded with dlopen from a configured path, so the
// binary has no link time dependency on PostGIS. Only the handful of
// functions needed to move a geometry through make-valid or build-area are
// resolved.
//
// liblwgeom reports errors and notices through process global callbacks
// registered with lwgeom_set_handlers. Open replaces both so messages end up
// in a proclog.Sink instead of stderr or abort(). Because that registration
// is global, every Binding in the process shares one call lock: a Binding
// must be locked for the whole of a native round trip, and while it is
// locked diagnostics are routed to its sink.
package lwgeom

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/proclog"
)

// Label is the library name used in log messages whatever file was loaded.
const Label = "liblwgeom"

// Common errors returned by this package.
var (
	ErrNoPath      = errors.New("lwgeom: library path not configured")
	ErrLoad        = errors.New("lwgeom: cannot load library")
	ErrSymbol      = errors.New("lwgeom: unresolved symbol")
	ErrUnsupported = errors.New("lwgeom: dynamic loading not supported in this build")
)

const (
	levelNotice = 0
	levelError  = 1
)

var (
	// callMu serializes every call into any loaded liblwgeom.
	callMu sync.Mutex

	activeMu sync.Mutex
	active   proclog.Sink

	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package logger. It is a no-op logger unless SetLogger
// was called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the package logger. Call it before the first Open.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l.Named("lwgeom")
}

func setActive(s proclog.Sink) {
	activeMu.Lock()
	active = s
	activeMu.Unlock()
}

// report receives a formatted native message.
func report(level int, msg string) {
	activeMu.Lock()
	s := active
	activeMu.Unlock()

	if s == nil {
		// a message outside of a locked call has no batch to belong to
		Logger().Warn("liblwgeom message outside of a call", zap.Int("level", level), zap.String("message", msg))
		return
	}

	switch level {
	case levelError:
		s.Append(proclog.Error, fmt.Sprintf("FAILURE: liblwgeom error is:\n%s", msg))
	default:
		s.Append(proclog.Warning, fmt.Sprintf("liblwgeom notice: %s", msg))
	}
}
