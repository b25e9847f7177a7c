package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
	"github.com/wms-platform/scanner-service/pkg/resilience"
	"github.com/wms-platform/scanner-service/pkg/tracing"
)

// Upstream names, used for circuit breakers, spans and metrics.
const (
	UpstreamInventory = "inventory-service"
	UpstreamFacility  = "facility-service"
	UpstreamStow      = "stow-service"
	UpstreamSubmit    = "submit-service"
)

// HeaderIdempotencyKey carries the submission key on submit requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// Config holds the upstream service URLs.
type Config struct {
	InventoryServiceURL string
	FacilityServiceURL  string
	StowServiceURL      string
	SubmitServiceURL    string
	Timeout             time.Duration
}

// HTTPGateway resolves scans and submits operations against the platform
// services over JSON/HTTP.
type HTTPGateway struct {
	config     *Config
	httpClient *http.Client
	breakers   *resilience.CircuitBreakerRegistry
	tracer     trace.Tracer
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewHTTPGateway creates an HTTPGateway. breakers may be nil.
func NewHTTPGateway(config *Config, breakers *resilience.CircuitBreakerRegistry, m *metrics.Metrics, logger *logging.Logger) *HTTPGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if breakers == nil {
		breakers = NewBreakerRegistry(m, logger)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &HTTPGateway{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		breakers:   breakers,
		tracer:     otel.Tracer("scanner-gateway"),
		metrics:    m,
		logger:     logger.WithComponent("gateway"),
	}
}

// NewBreakerRegistry returns a registry whose breakers only count transport
// failures; business rejections such as not_found leave the breaker closed.
func NewBreakerRegistry(m *metrics.Metrics, logger *logging.Logger) *resilience.CircuitBreakerRegistry {
	if logger == nil {
		logger = logging.Discard()
	}
	return resilience.NewCircuitBreakerRegistry(func(name string) *resilience.CircuitBreakerConfig {
		cfg := resilience.DefaultCircuitBreakerConfig(name)
		cfg.IsFailure = IsTransportFailure
		cfg.OnStateChange = func(name string, _, to gobreaker.State) {
			m.SetCircuitBreakerState(name, int(to))
		}
		return cfg
	}, logger.Logger)
}

// IsTransportFailure reports whether err should count against a breaker. A
// request cancelled by its caller says nothing about the upstream.
func IsTransportFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind == domain.ErrorKindTransport
	}
	return err != nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type suggestionResponse struct {
	Suggestion *domain.Suggestion `json:"suggestion"`
	Reason     string             `json:"reason,omitempty"`
}

// LookupItem resolves a source barcode for op.
func (g *HTTPGateway) LookupItem(ctx context.Context, op domain.Operation, code string) (domain.ScannedEntity, error) {
	endpoint := fmt.Sprintf("%s/api/v1/scanner/%s/sources/%s", g.config.InventoryServiceURL, op, url.PathEscape(code))

	var item domain.ScannedEntity
	err := g.call(ctx, "lookup_item", op, UpstreamInventory, http.MethodGet, endpoint, nil, nil, &item)
	return item, err
}

// LookupDestination resolves a destination barcode for op.
func (g *HTTPGateway) LookupDestination(ctx context.Context, op domain.Operation, code string) (domain.DestinationEntity, error) {
	endpoint := fmt.Sprintf("%s/api/v1/scanner/%s/destinations/%s", g.config.FacilityServiceURL, op, url.PathEscape(code))

	var dest domain.DestinationEntity
	err := g.call(ctx, "lookup_destination", op, UpstreamFacility, http.MethodGet, endpoint, nil, nil, &dest)
	return dest, err
}

// FetchSuggestion asks the stow service where the item should go. An empty
// answer is reported as none_available.
func (g *HTTPGateway) FetchSuggestion(ctx context.Context, op domain.Operation, itemID string) (domain.Suggestion, error) {
	q := url.Values{}
	q.Set("itemId", itemID)
	endpoint := fmt.Sprintf("%s/api/v1/scanner/%s/suggestions?%s", g.config.StowServiceURL, op, q.Encode())

	var resp suggestionResponse
	if err := g.call(ctx, "fetch_suggestion", op, UpstreamStow, http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return domain.Suggestion{}, err
	}
	if resp.Suggestion == nil || resp.Suggestion.TargetID == "" {
		reason := resp.Reason
		if reason == "" {
			reason = "no suggestion available"
		}
		return domain.Suggestion{}, domain.NewGatewayError(domain.ErrorKindNoneAvailable, "NONE_AVAILABLE", reason)
	}
	return *resp.Suggestion, nil
}

// SubmitOperation posts the submission. The submission key is sent as the
// Idempotency-Key so a retried request is recognised upstream.
func (g *HTTPGateway) SubmitOperation(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	endpoint := fmt.Sprintf("%s/api/v1/scanner/%s/submissions", g.config.SubmitServiceURL, sub.Operation)
	headers := map[string]string{HeaderIdempotencyKey: sub.Key}

	var result domain.Result
	err := g.call(ctx, "submit", sub.Operation, UpstreamSubmit, http.MethodPost, endpoint, headers, sub, &result)
	return result, err
}

func (g *HTTPGateway) call(ctx context.Context, call string, op domain.Operation, upstream, method, endpoint string, headers map[string]string, body, out interface{}) error {
	start := time.Now()
	breaker := g.breakers.Get(upstream)

	_, err := tracing.TracedOperation(ctx, g.tracer, "gateway."+call, func(ctx context.Context) (struct{}, error) {
		return resilience.Do(ctx, breaker, func() (struct{}, error) {
			return struct{}{}, g.doRequest(ctx, method, endpoint, headers, body, out)
		})
	}, tracing.GatewaySpanAttributes(call, string(op), upstream)...)

	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = &domain.GatewayError{Kind: domain.ErrorKindTransport, Code: "CIRCUIT_OPEN", Message: upstream + " is unavailable", Err: err}
	}

	g.metrics.RecordGatewayCall(call, err == nil, time.Since(start))
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Debug("Gateway call failed", "call", call, "upstream", upstream)
	}
	return err
}

// doRequest performs one HTTP exchange and maps failures to GatewayErrors.
func (g *HTTPGateway) doRequest(ctx context.Context, method, endpoint string, headers map[string]string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id, ok := ctx.Value(logging.CorrelationIDKey).(string); ok && id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	tracing.InjectTraceContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return &domain.GatewayError{Kind: domain.ErrorKindTransport, Code: "CANCELLED", Message: "request cancelled", Err: ctxErr}
		}
		return &domain.GatewayError{Kind: domain.ErrorKindTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.GatewayError{Kind: domain.ErrorKindTransport, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &domain.GatewayError{Kind: domain.ErrorKindTransport, Message: "malformed response", Err: err}
		}
	}
	return nil
}

// errorFromResponse maps the platform error body and status to a kind.
func errorFromResponse(status int, raw []byte) *domain.GatewayError {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	code := strings.ToUpper(body.Code)
	kind := domain.ErrorKindTransport
	switch {
	case code == "INACTIVE" || strings.HasSuffix(code, "_INACTIVE") || strings.HasSuffix(code, "_BLOCKED"):
		kind = domain.ErrorKindInactive
	case code == "NONE_AVAILABLE" || strings.HasPrefix(code, "NO_"):
		kind = domain.ErrorKindNoneAvailable
	case status == http.StatusNotFound:
		kind = domain.ErrorKindNotFound
	case status == http.StatusConflict:
		kind = domain.ErrorKindConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = domain.ErrorKindValidation
	}
	return &domain.GatewayError{Kind: kind, Code: body.Code, Message: msg}
}
