package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/middleware"
)

// StartSessionRequest opens a session on a device.
type StartSessionRequest struct {
	Operation  string `json:"operation" binding:"required"`
	DeviceID   string `json:"deviceId" binding:"omitempty,barcode"`
	OperatorID string `json:"operatorId" binding:"omitempty,barcode"`
}

// ScanRequest carries a raw scan. The orchestrator validates the code so an
// unreadable scan still produces the error cue on the device.
type ScanRequest struct {
	Code string `json:"code" binding:"required,max=1024"`
}

// QuantityRequest carries an operator-entered quantity.
type QuantityRequest struct {
	Quantity *float64 `json:"quantity" binding:"required"`
}

// OverrideRequest confirms a mismatched destination.
type OverrideRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// SessionHandler handles HTTP requests for scanner sessions
type SessionHandler struct {
	manager *application.SessionManager
	logger  *logging.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(manager *application.SessionManager, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

// RegisterValidators installs the custom binding tags used by the requests.
func RegisterValidators() error {
	return middleware.RegisterValidation("barcode", func(value string) bool {
		_, err := domain.NormalizeBarcode(value)
		return err == nil
	})
}

// RegisterRoutes mounts the session routes on rg.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.StartSession)
		sessions.GET("/:sessionId", h.GetSession)
		sessions.DELETE("/:sessionId", h.FinishSession)
		sessions.POST("/:sessionId/scan-item", h.ScanItem)
		sessions.POST("/:sessionId/scan-destination", h.ScanDestination)
		sessions.POST("/:sessionId/quantity", h.EnterQuantity)
		sessions.POST("/:sessionId/proceed", h.intent(func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error) {
			return o.Proceed(c.Request.Context())
		}))
		sessions.POST("/:sessionId/override", h.ChooseOverride)
		sessions.POST("/:sessionId/use-suggested", h.intent(func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error) {
			return o.UseSuggested(c.Request.Context())
		}))
		sessions.POST("/:sessionId/submit", h.intent(func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error) {
			return o.Submit(c.Request.Context())
		}))
		sessions.POST("/:sessionId/back", h.intent(func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error) {
			return o.GoBack(c.Request.Context())
		}))
		sessions.POST("/:sessionId/retry", h.intent(func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error) {
			return o.Retry(c.Request.Context())
		}))
		sessions.POST("/:sessionId/reset", h.intent(func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error) {
			return o.Reset(c.Request.Context())
		}))
	}

	rg.GET("/devices/:deviceId/sessions", h.ListDeviceSessions)
}

// StartSession handles POST /api/v1/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req StartSessionRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = c.GetHeader(middleware.HeaderDeviceID)
	}

	op, err := domain.ParseOperation(req.Operation)
	if err != nil {
		responder.RespondWithAppError(toAppError(err, ""))
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"scanner.operation": string(op),
		"scanner.device_id": req.DeviceID,
	})

	o, err := h.manager.Start(c.Request.Context(), application.StartSessionCommand{
		Operation:  op,
		DeviceID:   req.DeviceID,
		OperatorID: req.OperatorID,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err, ""))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": o.Snapshot()})
}

// GetSession handles GET /api/v1/sessions/:sessionId
func (h *SessionHandler) GetSession(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o.Snapshot()})
}

// FinishSession handles DELETE /api/v1/sessions/:sessionId
func (h *SessionHandler) FinishSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.manager.Finish(c.Request.Context(), sessionID); err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(toAppError(err, sessionID))
		return
	}
	c.Status(http.StatusNoContent)
}

// ScanItem handles POST /api/v1/sessions/:sessionId/scan-item
func (h *SessionHandler) ScanItem(c *gin.Context) {
	var req ScanRequest
	h.withBody(c, &req, func(o *application.Orchestrator) (application.Snapshot, error) {
		return o.ScanItem(c.Request.Context(), req.Code)
	})
}

// ScanDestination handles POST /api/v1/sessions/:sessionId/scan-destination
func (h *SessionHandler) ScanDestination(c *gin.Context) {
	var req ScanRequest
	h.withBody(c, &req, func(o *application.Orchestrator) (application.Snapshot, error) {
		return o.ScanDestination(c.Request.Context(), req.Code)
	})
}

// EnterQuantity handles POST /api/v1/sessions/:sessionId/quantity
func (h *SessionHandler) EnterQuantity(c *gin.Context) {
	var req QuantityRequest
	h.withBody(c, &req, func(o *application.Orchestrator) (application.Snapshot, error) {
		return o.EnterQuantity(c.Request.Context(), *req.Quantity)
	})
}

// ChooseOverride handles POST /api/v1/sessions/:sessionId/override
func (h *SessionHandler) ChooseOverride(c *gin.Context) {
	var req OverrideRequest
	h.withBody(c, &req, func(o *application.Orchestrator) (application.Snapshot, error) {
		return o.ChooseOverride(c.Request.Context(), req.Reason)
	})
}

// ListDeviceSessions handles GET /api/v1/devices/:deviceId/sessions
func (h *SessionHandler) ListDeviceSessions(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)
	if err != nil || limit < 1 || limit > 100 {
		middleware.NewErrorResponder(c, h.logger.Logger).
			RespondValidationError("invalid query", map[string]string{"limit": "must be between 1 and 100"})
		return
	}

	sessions, err := h.manager.Resumable(c.Request.Context(), c.Param("deviceId"), limit)
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(toAppError(err, ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

// session resolves the :sessionId path parameter, responding on failure.
func (h *SessionHandler) session(c *gin.Context) (*application.Orchestrator, bool) {
	sessionID := c.Param("sessionId")
	o, err := h.manager.Get(c.Request.Context(), sessionID)
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(toAppError(err, sessionID))
		return nil, false
	}
	return o, true
}

type intentFunc func(c *gin.Context, o *application.Orchestrator) (application.Snapshot, error)

// intent builds a handler for a body-less operator intent.
func (h *SessionHandler) intent(fn intentFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := h.session(c)
		if !ok {
			return
		}
		snapshot, err := fn(c, o)
		h.respond(c, o, snapshot, err)
	}
}

func (h *SessionHandler) withBody(c *gin.Context, req interface{}, fn func(o *application.Orchestrator) (application.Snapshot, error)) {
	if appErr := middleware.BindAndValidate(c, req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(appErr)
		return
	}
	o, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := fn(o)
	h.respond(c, o, snapshot, err)
}

func (h *SessionHandler) respond(c *gin.Context, o *application.Orchestrator, snapshot application.Snapshot, err error) {
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithAppError(toAppError(err, o.Info().ID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}
