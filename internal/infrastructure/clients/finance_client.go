package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/market-console/finance-portal/internal/domain"
	apperrors "github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/resilience"
)

const financeService = "marketplace-finance"

// Endpoints are the upstream paths, relative to the base URL
type Endpoints struct {
	Balance string
	Chart   string
	Finance string
}

// DefaultEndpoints returns the seller finance API paths
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Balance: "/api/seller/finance/balance",
		Chart:   "/api/seller/finance/chart",
		Finance: "/api/seller/finance",
	}
}

// FinanceClientConfig configures a FinanceClient
type FinanceClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Endpoints   Endpoints
	Credentials CredentialsProvider
	HTTPClient  *http.Client
}

// FinanceClient reads the seller's balance, chart series and payment feed
type FinanceClient struct {
	client    *ServiceClient
	endpoints Endpoints
}

// NewFinanceClient creates a finance client behind breaker. breaker may be
// nil; when set it should treat authorization errors as neutral.
func NewFinanceClient(cfg FinanceClientConfig, breaker *resilience.CircuitBreaker, logger *logging.Logger, metrics DownstreamMetrics) *FinanceClient {
	endpoints := cfg.Endpoints
	defaults := DefaultEndpoints()
	if endpoints.Balance == "" {
		endpoints.Balance = defaults.Balance
	}
	if endpoints.Chart == "" {
		endpoints.Chart = defaults.Chart
	}
	if endpoints.Finance == "" {
		endpoints.Finance = defaults.Finance
	}
	credentials := cfg.Credentials
	if credentials == nil {
		credentials = RequestCredentials{}
	}
	if logger != nil {
		logger = logger.WithComponent("finance-client")
	}

	return &FinanceClient{
		client: NewServiceClient(ServiceClientConfig{
			BaseURL:     cfg.BaseURL,
			Service:     financeService,
			Timeout:     cfg.Timeout,
			Credentials: credentials,
			Breaker:     breaker,
			Logger:      logger,
			Metrics:     metrics,
			HTTPClient:  cfg.HTTPClient,
		}),
		endpoints: endpoints,
	}
}

// FinanceBreakerConfig returns breaker settings for the finance upstream
func FinanceBreakerConfig() *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(financeService)
	cfg.Neutral = apperrors.IsAuthorization
	return cfg
}

// GetBalance returns the raw balance object
func (c *FinanceClient) GetBalance(ctx context.Context) (domain.Record, error) {
	body, err := c.client.getJSON(ctx, c.endpoints.Balance)
	if err != nil {
		return nil, err
	}
	if rec, ok := unwrapData(body).(map[string]interface{}); ok {
		return domain.Record(rec), nil
	}
	return domain.Record{}, nil
}

// GetChartSeries returns the raw chart entries. A bare array or one nested
// under "data", "series", "items" or "points" is accepted.
func (c *FinanceClient) GetChartSeries(ctx context.Context) ([]domain.Record, error) {
	body, err := c.client.getJSON(ctx, c.endpoints.Chart)
	if err != nil {
		return nil, err
	}
	body = unwrapData(body)
	if obj, ok := body.(map[string]interface{}); ok {
		body = domain.Record(obj).First("series", "items", "points")
	}
	return domain.RecordsFrom(body), nil
}

// GetFinance returns the payment and withdrawal feed
func (c *FinanceClient) GetFinance(ctx context.Context) (*domain.FinanceFeed, error) {
	body, err := c.client.getJSON(ctx, c.endpoints.Finance)
	if err != nil {
		return nil, err
	}
	feed := &domain.FinanceFeed{}
	obj, ok := unwrapData(body).(map[string]interface{})
	if !ok {
		return feed, nil
	}
	rec := domain.Record(obj)
	feed.Payments = domain.RecordsFrom(rec.First("payments", "transactions"))
	feed.Withdraws = domain.RecordsFrom(rec.First("withdraws", "withdrawals"))
	return feed, nil
}

// unwrapData strips a {"data": ...} envelope when present
func unwrapData(body interface{}) interface{} {
	obj, ok := body.(map[string]interface{})
	if !ok {
		return body
	}
	if data, ok := obj["data"]; ok && data != nil {
		switch data.(type) {
		case map[string]interface{}, []interface{}:
			return data
		}
	}
	return body
}
