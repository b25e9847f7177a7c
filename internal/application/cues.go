package application

import (
	"sync"

	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
)

// Cue is a feedback signal class.
type Cue string

const (
	CueSuccess Cue = "success"
	CueError   Cue = "error"
	CueWarning Cue = "warning"
	CueConfirm Cue = "confirm"
)

// DefaultCueBuffer is the dispatcher queue length per session.
const DefaultCueBuffer = 16

// CueFor derives the feedback implied by an accepted transition.
func CueFor(prev, next domain.State, e domain.Event) (Cue, bool) {
	switch e.(type) {
	case domain.ItemScanned:
		return CueSuccess, true

	case domain.ItemLookupFailed, domain.SuggestionFailed, domain.DestinationLookupFailed, domain.SubmitFailed:
		return CueError, true

	case domain.DestinationScanned:
		if next.Error != nil {
			return CueError, true
		}
		if _, pending := next.Mismatch(); pending {
			return CueWarning, true
		}
		if raisedWarning(prev, next, domain.PhaseScanDestination) {
			return CueWarning, true
		}
		return CueSuccess, true

	case domain.QuantityEntered:
		if next.Error != nil {
			return CueError, true
		}
		if raisedWarning(prev, next, domain.PhaseEnterQuantity) {
			return CueWarning, true
		}
		return CueSuccess, true

	case domain.OverrideChosen:
		return CueWarning, true

	case domain.SubmitSucceeded:
		return CueConfirm, true
	}
	return "", false
}

func raisedWarning(prev, next domain.State, phase domain.Phase) bool {
	w := next.Warning()
	if w == nil || w.Phase != phase {
		return false
	}
	return prev.Warning() == nil || *prev.Warning() != *w
}

// CueDispatcher delivers cues to a Feedback sink on its own goroutine so a
// slow device never holds up a transition. A full queue drops the cue.
type CueDispatcher struct {
	feedback Feedback
	metrics  *metrics.Metrics
	logger   *logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Cue
	done   chan struct{}
}

// NewCueDispatcher starts a dispatcher. Close must be called to stop it.
func NewCueDispatcher(feedback Feedback, buffer int, m *metrics.Metrics, logger *logging.Logger) *CueDispatcher {
	if buffer <= 0 {
		buffer = DefaultCueBuffer
	}
	if logger == nil {
		logger = logging.Discard()
	}
	d := &CueDispatcher{
		feedback: feedback,
		metrics:  m,
		logger:   logger,
		queue:    make(chan Cue, buffer),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues c without blocking. It reports whether the cue was queued.
func (d *CueDispatcher) Dispatch(c Cue) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- c:
		return true
	default:
		d.metrics.RecordFeedbackDropped()
		d.logger.Warn("Feedback queue full, dropping cue", "cue", string(c))
		return false
	}
}

// Close stops accepting cues and waits until queued ones are delivered.
func (d *CueDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *CueDispatcher) run() {
	defer close(d.done)
	for c := range d.queue {
		d.deliver(c)
	}
}

func (d *CueDispatcher) deliver(c Cue) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Feedback sink panicked", "cue", string(c), "panic", r)
		}
	}()

	switch c {
	case CueSuccess:
		d.feedback.SignalSuccess()
	case CueError:
		d.feedback.SignalError()
	case CueWarning:
		d.feedback.SignalWarning()
	case CueConfirm:
		d.feedback.SignalConfirm()
	}
}
