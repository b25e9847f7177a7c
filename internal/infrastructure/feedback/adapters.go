// Package feedback holds the sinks behind the orchestrator's feedback port.
package feedback

import (
	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
)

// Noop discards every cue.
type Noop struct{}

func (Noop) SignalSuccess() {}
func (Noop) SignalError()   {}
func (Noop) SignalWarning() {}
func (Noop) SignalConfirm() {}

// cueSink adapts a func(cue) to the Feedback interface.
type cueSink func(application.Cue)

func (f cueSink) SignalSuccess() { f(application.CueSuccess) }
func (f cueSink) SignalError()   { f(application.CueError) }
func (f cueSink) SignalWarning() { f(application.CueWarning) }
func (f cueSink) SignalConfirm() { f(application.CueConfirm) }

// Logging writes each cue as a debug record tagged with the session.
func Logging(logger *logging.Logger, sessionID string) application.Feedback {
	l := logger.WithComponent("feedback")
	return cueSink(func(c application.Cue) {
		l.Debug("Feedback cue", "sessionId", sessionID, "cue", string(c))
	})
}

// Metrics counts cues by signal.
func Metrics(m *metrics.Metrics) application.Feedback {
	return cueSink(func(c application.Cue) {
		m.RecordFeedbackSignal(string(c))
	})
}

// Fanout delivers each cue to every sink in order.
func Fanout(sinks ...application.Feedback) application.Feedback {
	return cueSink(func(c application.Cue) {
		for _, s := range sinks {
			switch c {
			case application.CueSuccess:
				s.SignalSuccess()
			case application.CueError:
				s.SignalError()
			case application.CueWarning:
				s.SignalWarning()
			case application.CueConfirm:
				s.SignalConfirm()
			}
		}
	})
}

// NewFactory returns the per-session feedback used by the API server: a log
// line, a counter and a frame on the session's device stream.
func NewFactory(logger *logging.Logger, m *metrics.Metrics, hub *Hub) application.FeedbackFactory {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(sessionID string) application.Feedback {
		sinks := []application.Feedback{Logging(logger, sessionID), Metrics(m)}
		if hub != nil {
			sinks = append(sinks, hub.ForSession(sessionID))
		}
		return Fanout(sinks...)
	}
}
