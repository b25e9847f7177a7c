package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/middleware"
)

// stubGateway answers lookups from its Fn fields, falling back to canned data.
type stubGateway struct {
	LookupItemFn        func(ctx context.Context, op domain.Operation, code string) (domain.ScannedEntity, error)
	LookupDestinationFn func(ctx context.Context, op domain.Operation, code string) (domain.DestinationEntity, error)
	FetchSuggestionFn   func(ctx context.Context, op domain.Operation, itemID string) (domain.Suggestion, error)
	SubmitOperationFn   func(ctx context.Context, sub domain.Submission) (domain.Result, error)
}

func (s *stubGateway) LookupItem(ctx context.Context, op domain.Operation, code string) (domain.ScannedEntity, error) {
	if s.LookupItemFn != nil {
		return s.LookupItemFn(ctx, op, code)
	}
	return domain.ScannedEntity{ID: "id-" + code, Code: code, LocationID: "STAGE"}, nil
}

func (s *stubGateway) LookupDestination(ctx context.Context, op domain.Operation, code string) (domain.DestinationEntity, error) {
	if s.LookupDestinationFn != nil {
		return s.LookupDestinationFn(ctx, op, code)
	}
	return domain.DestinationEntity{ID: "id-" + code, Code: code}, nil
}

func (s *stubGateway) FetchSuggestion(ctx context.Context, op domain.Operation, itemID string) (domain.Suggestion, error) {
	if s.FetchSuggestionFn != nil {
		return s.FetchSuggestionFn(ctx, op, itemID)
	}
	return domain.Suggestion{TargetID: "id-A-01", TargetCode: "A-01"}, nil
}

func (s *stubGateway) SubmitOperation(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	if s.SubmitOperationFn != nil {
		return s.SubmitOperationFn(ctx, sub)
	}
	return domain.Result{Reference: "TX-" + sub.Key}, nil
}

type snapshotResponse struct {
	Data application.Snapshot `json:"data"`
}

func setupTestRouter(t *testing.T, gw application.Gateway) (*gin.Engine, *application.SessionManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	manager := application.NewSessionManager(application.ManagerConfig{Options: application.DefaultOptions()},
		application.Dependencies{Gateway: gw}, nil)
	t.Cleanup(manager.Close)

	router := gin.New()
	api := router.Group("/api/v1")
	NewSessionHandler(manager, nil).RegisterRoutes(api)
	return router, manager
}

func makeRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) application.Snapshot {
	t.Helper()
	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.APIErrorResponse {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func startSession(t *testing.T, router *gin.Engine, op string) string {
	t.Helper()
	w := makeRequest(router, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Operation: op, DeviceID: "DEV-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeSnapshot(t, w).SessionID
}

func TestStartSession(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{})

	w := makeRequest(router, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Operation: "produce", DeviceID: "DEV-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	snap := decodeSnapshot(t, w)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, domain.OperationOutput, snap.Operation)
	assert.Equal(t, "DEV-1", snap.DeviceID)
	assert.Equal(t, domain.PhaseScanSource, snap.State.Phase)
	assert.Contains(t, snap.AvailableIntents, application.IntentScanItem)
}

func TestStartSession_DeviceHeader(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{})

	body, _ := json.Marshal(StartSessionRequest{Operation: "pick"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderDeviceID, "DEV-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "DEV-7", decodeSnapshot(t, w).DeviceID)
}

func TestStartSession_Validation(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{})

	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"missing operation", map[string]string{"deviceId": "DEV-1"}, "VALIDATION_ERROR"},
		{"unreadable device id", StartSessionRequest{Operation: "move", DeviceID: "DEV\x07"}, "VALIDATION_ERROR"},
		{"unknown operation", StartSessionRequest{Operation: "cycle_count"}, "UNSUPPORTED_OPERATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := makeRequest(router, http.MethodPost, "/api/v1/sessions", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestMoveFlowOverHTTP(t *testing.T) {
	var submitted domain.Submission
	router, _ := setupTestRouter(t, &stubGateway{
		SubmitOperationFn: func(_ context.Context, sub domain.Submission) (domain.Result, error) {
			submitted = sub
			return domain.Result{Reference: "TX-1"}, nil
		},
	})
	id := startSession(t, router, "move")
	base := "/api/v1/sessions/" + id

	w := makeRequest(router, http.MethodPost, base+"/scan-item", ScanRequest{Code: " LP-1 "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.PhaseScanDestination, decodeSnapshot(t, w).State.Phase)

	w = makeRequest(router, http.MethodPost, base+"/scan-destination", ScanRequest{Code: "B-02"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.PhaseConfirm, decodeSnapshot(t, w).State.Phase)

	w = makeRequest(router, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeSnapshot(t, w)
	assert.Equal(t, domain.PhaseSuccess, snap.State.Phase)
	require.NotNil(t, snap.State.Result)
	assert.Equal(t, "TX-1", snap.State.Result.Reference)
	assert.Equal(t, "id-LP-1", submitted.SourceID)
	assert.Equal(t, "id-B-02", submitted.DestinationID)

	w = makeRequest(router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseSuccess, decodeSnapshot(t, w).State.Phase)

	w = makeRequest(router, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseScanSource, decodeSnapshot(t, w).State.Phase)
}

func TestLookupFailureIsPartOfSnapshot(t *testing.T) {
	calls := 0
	router, _ := setupTestRouter(t, &stubGateway{
		LookupItemFn: func(_ context.Context, _ domain.Operation, code string) (domain.ScannedEntity, error) {
			calls++
			if calls == 1 {
				return domain.ScannedEntity{}, domain.NewGatewayError(domain.ErrorKindTransport, "", "inventory unreachable")
			}
			return domain.ScannedEntity{ID: "id-" + code, Code: code, LocationID: "STAGE"}, nil
		},
	})
	base := "/api/v1/sessions/" + startSession(t, router, "move")

	w := makeRequest(router, http.MethodPost, base+"/scan-item", ScanRequest{Code: "LP-1"})

	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, domain.PhaseScanSource, snap.State.Phase)
	require.NotNil(t, snap.State.Error)
	assert.Equal(t, domain.ErrorKindTransport, snap.State.Error.Kind)
	assert.True(t, snap.CanRetry)

	w = makeRequest(router, http.MethodPost, base+"/retry", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseScanDestination, decodeSnapshot(t, w).State.Phase)
	assert.Equal(t, 2, calls)
}

func TestIntentErrors(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{})
	base := "/api/v1/sessions/" + startSession(t, router, "putaway")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/api/v1/sessions/missing", nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"intent outside its phase", http.MethodPost, base + "/proceed", nil, http.StatusConflict, "INTENT_NOT_APPLICABLE"},
		{"override outside mismatch", http.MethodPost, base + "/override", OverrideRequest{Reason: "bin full"}, http.StatusConflict, "INTENT_NOT_APPLICABLE"},
		{"missing scan code", http.MethodPost, base + "/scan-item", map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unreadable barcode", http.MethodPost, base + "/scan-item", ScanRequest{Code: "LP\x00"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing quantity", http.MethodPost, base + "/quantity", map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := makeRequest(router, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestFinishSession(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{})
	base := "/api/v1/sessions/" + startSession(t, router, "pack")

	w := makeRequest(router, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = makeRequest(router, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = makeRequest(router, http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListDeviceSessions(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{})

	t.Run("without a persistent store", func(t *testing.T) {
		w := makeRequest(router, http.MethodGet, "/api/v1/devices/DEV-1/sessions", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data []application.SessionSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Data)
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := makeRequest(router, http.MethodGet, "/api/v1/devices/DEV-1/sessions?limit=500", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "must be between 1 and 100", decodeError(t, w).Details["limit"])
	})
}

func TestSubmitTimesOut(t *testing.T) {
	router, _ := setupTestRouter(t, &stubGateway{
		SubmitOperationFn: func(ctx context.Context, _ domain.Submission) (domain.Result, error) {
			return domain.Result{}, &domain.GatewayError{Kind: domain.ErrorKindTransport, Message: "deadline", Err: context.DeadlineExceeded}
		},
	})
	base := "/api/v1/sessions/" + startSession(t, router, "move")
	makeRequest(router, http.MethodPost, base+"/scan-item", ScanRequest{Code: "LP-1"})
	makeRequest(router, http.MethodPost, base+"/scan-destination", ScanRequest{Code: "B-02"})

	start := time.Now()
	w := makeRequest(router, http.MethodPost, base+"/submit", nil)

	require.Equal(t, http.StatusOK, w.Code, "a failed submission is reported in the snapshot")
	snap := decodeSnapshot(t, w)
	assert.Equal(t, domain.PhaseConfirm, snap.State.Phase)
	assert.True(t, snap.CanRetry)
	assert.Less(t, time.Since(start), 5*time.Second)
}
