// Package telemetry reports fatal setup errors to a crash-telemetry
// backend (Sentry), never from the realtime path. It is deliberately
// narrow: surfacing initialization failures (missing plugin URI,
// unsupported feature, audio-server connection failure, plugin
// instantiation failure) for operators who run this host unattended.
package telemetry

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/logging"
)

var (
	initOnce    sync.Once
	initialized bool
	enabled     bool
)

// Config controls whether telemetry is active and where it reports to.
type Config struct {
	Enabled bool
	DSN     string
	Release string
}

// Init configures the global Sentry client. A disabled config, or one with
// an empty DSN, leaves telemetry inert: Report becomes a no-op.
func Init(cfg Config) error {
	var initErr error
	initOnce.Do(func() {
		if !cfg.Enabled || cfg.DSN == "" {
			return
		}
		initErr = sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.DSN,
			AttachStacktrace: true,
			Environment:      "production",
			Release:          cfg.Release,
			SampleRate:       1.0,
		})
		if initErr == nil {
			enabled = true
		}
	})
	initialized = true
	return initErr
}

// Enabled reports whether telemetry will actually transmit reports.
func Enabled() bool { return enabled }

// ReportSetupFailure reports a fatal setup error to the telemetry backend.
// It is never called from the RT process cycle; recoverable runtime errors
// are logged, not reported.
func ReportSetupFailure(err error) {
	if !enabled || err == nil {
		return
	}

	scope := sentry.CurrentHub().Clone()
	if ee, ok := err.(*errors.EnhancedError); ok {
		scope.ConfigureScope(func(s *sentry.Scope) {
			s.SetTag("component", ee.GetComponent())
			s.SetTag("category", string(ee.GetCategory()))
			for k, v := range ee.GetContext() {
				s.SetExtra(k, v)
			}
		})
	}
	scope.CaptureException(err)

	if log := logging.ForService("telemetry"); log != nil {
		log.Error("reported fatal setup failure to telemetry", "error", err)
	}
}

// Flush blocks up to timeout waiting for queued events to be sent, and
// should be called once during shutdown before the process exits.
func Flush(timeout time.Duration) {
	if !enabled {
		return
	}
	sentry.Flush(timeout)
}
