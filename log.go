package dbus

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// nullLogEntry returns a logrus entry backed by a logger with output
// discarded, used as the default when a Conn is constructed without
// WithLogger (a Service logs through its Conn's entry).
func nullLogEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

var (
	pkgLoggerMu sync.RWMutex
	pkgLogger   = nullLogEntry()
)

// SetLogger redirects the package-level log records emitted before a Conn
// exists (address-resolution attempts during Dial) to l. Without a call to SetLogger, these records are
// discarded, matching the per-Conn default of WithLogger.
func SetLogger(l *logrus.Logger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = logrus.NewEntry(l)
}

func pkgLog() *logrus.Entry {
	pkgLoggerMu.RLock()
	defer pkgLoggerMu.RUnlock()
	return pkgLogger
}
