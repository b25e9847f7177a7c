package feedback

import (
	"sync"
	"time"

	"github.com/wms-platform/scanner-service/internal/application"
)

// FrameTypeCue is the type of frames carrying a feedback cue.
const FrameTypeCue = "cue"

// CueFrame is pushed to devices subscribed to a session.
type CueFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Cue       application.Cue `json:"cue"`
	At        time.Time       `json:"at"`
}

// DefaultSubscriberBuffer is the per-subscriber frame queue length.
const DefaultSubscriberBuffer = 32

// Hub fans cue frames out to the stream connections of each session. A slow
// subscriber loses frames rather than stalling the cue dispatcher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan CueFrame]struct{}
	buffer int
	now    func() time.Time
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[chan CueFrame]struct{}),
		buffer: DefaultSubscriberBuffer,
		now:    time.Now,
	}
}

// ForSession returns the feedback sink that broadcasts to sessionID.
func (h *Hub) ForSession(sessionID string) application.Feedback {
	return cueSink(func(c application.Cue) {
		h.Broadcast(sessionID, c)
	})
}

// Subscribe registers a stream for sessionID. The returned func unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan CueFrame, func()) {
	ch := make(chan CueFrame, h.buffer)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan CueFrame]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			close(ch)
		})
	}
}

// Broadcast sends c to every subscriber of sessionID and returns how many
// received it.
func (h *Hub) Broadcast(sessionID string, c application.Cue) int {
	frame := CueFrame{Type: FrameTypeCue, SessionID: sessionID, Cue: c, At: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for ch := range h.subs[sessionID] {
		select {
		case ch <- frame:
			sent++
		default:
		}
	}
	return sent
}

// Subscribers returns the number of streams attached to sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
