package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/resilience"
)

var tracer = otel.Tracer("finance-portal/clients")

// maxErrorBody bounds how much of an error response is kept for logs
const maxErrorBody = 2048

// DownstreamMetrics records upstream call outcomes
type DownstreamMetrics interface {
	RecordRequest(service, operation, status string, duration time.Duration)
}

// ServiceClient issues authenticated JSON requests against one upstream
type ServiceClient struct {
	httpClient  *http.Client
	baseURL     string
	service     string
	logger      *logging.Logger
	metrics     DownstreamMetrics
	breaker     *resilience.CircuitBreaker
	credentials CredentialsProvider
}

// ServiceClientConfig configures a ServiceClient
type ServiceClientConfig struct {
	BaseURL     string
	Service     string
	Timeout     time.Duration
	Credentials CredentialsProvider
	Breaker     *resilience.CircuitBreaker
	Logger      *logging.Logger
	Metrics     DownstreamMetrics
	HTTPClient  *http.Client
}

// NewServiceClient creates a new service client
func NewServiceClient(cfg ServiceClientConfig) *ServiceClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &ServiceClient{
		httpClient:  httpClient,
		baseURL:     cfg.BaseURL,
		service:     cfg.Service,
		logger:      logger,
		metrics:     cfg.Metrics,
		breaker:     cfg.Breaker,
		credentials: cfg.Credentials,
	}
}

// getJSON fetches path and decodes the body with json.Number preserved
func (c *ServiceClient) getJSON(ctx context.Context, path string) (interface{}, error) {
	run := func(ctx context.Context) (interface{}, error) {
		return c.doRequest(ctx, http.MethodGet, path)
	}
	if c.breaker == nil {
		return run(ctx)
	}
	result, err := c.breaker.Execute(ctx, run)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, apperrors.ErrServiceUnavailable(c.service).Wrap(err)
	}
	return result, err
}

func (c *ServiceClient) doRequest(ctx context.Context, method, path string) (interface{}, error) {
	start := time.Now()
	operation := method + " " + path

	ctx, span := tracer.Start(ctx, c.service+"."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", c.baseURL+path),
			attribute.String("service", c.service),
		),
	)
	defer span.End()

	fail := func(status int, err error) (interface{}, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.record(ctx, operation, path, status, start, err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fail(0, apperrors.ErrInternal("failed to create request").Wrap(err))
	}
	req.Header.Set("Accept", "application/json")

	if c.credentials != nil {
		token, err := c.credentials.Token(ctx)
		if err != nil {
			return fail(0, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, apperrors.ErrServiceUnavailable(c.service).Wrap(err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		appErr := apperrors.ErrUpstreamStatus(c.service, resp.StatusCode).
			Wrap(fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, string(body)))
		return fail(resp.StatusCode, appErr)
	}

	var result interface{}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return fail(resp.StatusCode, apperrors.NewAppError(apperrors.CodeUpstreamError, "failed to decode upstream response", http.StatusBadGateway).Wrap(err))
	}

	span.SetStatus(codes.Ok, "")
	c.record(ctx, operation, path, resp.StatusCode, start, nil)
	return result, nil
}

func (c *ServiceClient) record(ctx context.Context, operation, path string, status int, start time.Time, err error) {
	duration := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(c.service, operation, outcome, duration)
	}
	c.logger.UpstreamCall(ctx, http.MethodGet, path, status, duration)
	if err != nil && !apperrors.IsAuthorization(err) {
		c.logger.WithContext(ctx).WithError(err).Error("Downstream service call failed",
			"service", c.service,
			"operation", operation,
		)
	}
}
