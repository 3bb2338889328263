// Package mxllog wraps a single process-wide structured logger built on
// logrus. Instance and its garbage collector log through this package;
// the Flow Manager and Domain Watcher do not log; the CLI layer continues to print direct human/JSON text
// via internal/output, never through logrus, keeping library-internal
// structured logs separate from CLI-facing output.
package mxllog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	logger = logrus.New()
)

// init sets a sane default before anyone calls SetLevel explicitly.
func init() {
	logger.SetLevel(logrus.WarnLevel)
	logger.SetOutput(os.Stderr)
}

// SetLevel parses level ("debug", "info", "warn", "error", ...) and
// applies it to the package logger. Unrecognized levels are ignored,
// leaving the previous level in effect. Idempotent: safe to call
// multiple times, e.g. once from an explicit option and once from
// MXL_LOG_LEVEL.
func SetLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	logger.SetLevel(lvl)
}

// Init applies MXL_LOG_LEVEL once per process. Safe to call from
// multiple entry points (library init, CLI PersistentPreRunE); only the
// first call has an effect.
func Init() {
	once.Do(func() {
		SetLevel(os.Getenv("MXL_LOG_LEVEL"))
	})
}

// Logger returns the package-wide logger for callers that need direct
// access (e.g. to build a component-scoped Entry).
func Logger() *logrus.Logger { return logger }

// For returns a *logrus.Entry pre-populated with a "component" field,
// the grouping key Instance and its garbage collector log under.
func For(component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// ForFlow returns an entry scoped to a specific domain and flow, used by
// Instance for per-operation logs.
func ForFlow(component, domain, flowID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": component,
		"domain":    domain,
		"flow":      flowID,
	})
}
