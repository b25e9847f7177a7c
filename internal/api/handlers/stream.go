package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/internal/infrastructure/feedback"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/middleware"
)

// FrameTypeSnapshot is the type of frames carrying a session snapshot.
const FrameTypeSnapshot = "snapshot"

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SnapshotFrame is pushed to the device after every state change.
type SnapshotFrame struct {
	Type string               `json:"type"`
	Data application.Snapshot `json:"data"`
}

// StreamHandler pushes snapshots and feedback cues of one session over a
// WebSocket. Devices send nothing but control frames; intents go through the
// REST routes.
type StreamHandler struct {
	manager  *application.SessionManager
	hub      *feedback.Hub
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewStreamHandler creates a StreamHandler. hub may be nil, in which case
// only snapshots are streamed.
func NewStreamHandler(manager *application.SessionManager, hub *feedback.Hub, logger *logging.Logger) *StreamHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StreamHandler{
		manager: manager,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.WithComponent("stream"),
	}
}

// RegisterRoutes mounts the stream route on rg.
func (h *StreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions/:sessionId/stream", h.Stream)
}

// Stream handles GET /api/v1/sessions/:sessionId/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	sessionID := c.Param("sessionId")
	o, err := h.manager.Get(c.Request.Context(), sessionID)
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(toAppError(err, sessionID))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed", "sessionId", sessionID)
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := o.Subscribe()
	defer unsubscribe()

	var cues <-chan feedback.CueFrame
	if h.hub != nil {
		ch, unsubscribeCues := h.hub.Subscribe(sessionID)
		defer unsubscribeCues()
		cues = ch
	}

	logger := h.logger.WithSession(sessionID, string(o.Info().Operation))
	logger.Info("Device stream connected", "remoteAddr", c.Request.RemoteAddr)

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				closeStream(conn, websocket.CloseGoingAway, "session closed")
				logger.Info("Device stream ended, session closed")
				return
			}
			if err := writeJSON(conn, SnapshotFrame{Type: FrameTypeSnapshot, Data: snap}); err != nil {
				logger.WithError(err).Debug("Device stream write failed")
				return
			}
		case frame, ok := <-cues:
			if !ok {
				cues = nil
				continue
			}
			if err := writeJSON(conn, frame); err != nil {
				logger.WithError(err).Debug("Device stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Info("Device stream disconnected")
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// readPump drains control frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func closeStream(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
