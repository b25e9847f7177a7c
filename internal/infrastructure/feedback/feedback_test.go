package feedback

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
)

type recorder struct{ cues []application.Cue }

func (r *recorder) SignalSuccess() { r.cues = append(r.cues, application.CueSuccess) }
func (r *recorder) SignalError()   { r.cues = append(r.cues, application.CueError) }
func (r *recorder) SignalWarning() { r.cues = append(r.cues, application.CueWarning) }
func (r *recorder) SignalConfirm() { r.cues = append(r.cues, application.CueConfirm) }

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := Fanout(a, Noop{}, b)

	f.SignalSuccess()
	f.SignalWarning()
	f.SignalError()
	f.SignalConfirm()

	want := []application.Cue{application.CueSuccess, application.CueWarning, application.CueError, application.CueConfirm}
	assert.Equal(t, want, a.cues)
	assert.Equal(t, want, b.cues)
}

func TestMetrics(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("scanner-test"))
	f := Metrics(m)

	f.SignalWarning()
	f.SignalWarning()
	f.SignalConfirm()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedbackSignalsTotal.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedbackSignalsTotal.WithLabelValues("confirm")))
}

func TestMetrics_NilRegistry(t *testing.T) {
	assert.NotPanics(t, func() { Metrics(nil).SignalError() })
}

func TestHub_BroadcastToSessionSubscribers(t *testing.T) {
	hub := NewHub()
	first, unsubFirst := hub.Subscribe("sess-1")
	second, unsubSecond := hub.Subscribe("sess-1")
	other, unsubOther := hub.Subscribe("sess-2")
	defer unsubSecond()
	defer unsubOther()

	hub.ForSession("sess-1").SignalWarning()

	for _, ch := range []<-chan CueFrame{first, second} {
		frame := <-ch
		assert.Equal(t, FrameTypeCue, frame.Type)
		assert.Equal(t, "sess-1", frame.SessionID)
		assert.Equal(t, application.CueWarning, frame.Cue)
	}
	assert.Empty(t, other)

	unsubFirst()
	unsubFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers("sess-1"))
	assert.Equal(t, 1, hub.Broadcast("sess-1", application.CueSuccess))
}

func TestHub_SlowSubscriberDropsFrames(t *testing.T) {
	hub := NewHub()
	hub.buffer = 1
	ch, unsub := hub.Subscribe("sess-1")
	defer unsub()

	assert.Equal(t, 1, hub.Broadcast("sess-1", application.CueSuccess))
	assert.Equal(t, 0, hub.Broadcast("sess-1", application.CueError))

	frame := <-ch
	assert.Equal(t, application.CueSuccess, frame.Cue)
}

func TestNewFactory(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe("sess-1")
	defer unsub()

	factory := NewFactory(logging.Discard(), nil, hub)
	factory("sess-1").SignalConfirm()

	require.Len(t, ch, 1)
	assert.Equal(t, application.CueConfirm, (<-ch).Cue)
}
