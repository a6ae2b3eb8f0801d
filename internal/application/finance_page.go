package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/market-console/finance-portal/internal/domain"
	"github.com/market-console/finance-portal/internal/export"
	apperrors "github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/tracing"
)

var tracer = otel.Tracer("finance-portal/application")

// FinanceAPI is the upstream the page reads from
type FinanceAPI interface {
	GetBalance(ctx context.Context) (domain.Record, error)
	GetChartSeries(ctx context.Context) ([]domain.Record, error)
	GetFinance(ctx context.Context) (*domain.FinanceFeed, error)
}

// Notifier receives export outcomes
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Metrics records page activity
type Metrics interface {
	RecordLane(lane, outcome string, duration time.Duration)
	RecordRowsDerived(n int)
	RecordExport(success bool, rows int)
}

type noopMetrics struct{}

func (noopMetrics) RecordLane(string, string, time.Duration) {}
func (noopMetrics) RecordRowsDerived(int)                    {}
func (noopMetrics) RecordExport(bool, int)                   {}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, domain.Notification) {}

// Lane names
const (
	LaneBalance   = "balance"
	LaneAnalytics = "analytics"
)

// Lane outcomes reported to metrics
const (
	outcomeSuccess      = "success"
	outcomeError        = "error"
	outcomeUnauthorized = "unauthorized"
	outcomeDiscarded    = "discarded"
)

// LaneStatus is the state of one fetch lane
type LaneStatus string

const (
	LaneIdle         LaneStatus = "idle"
	LaneLoading      LaneStatus = "loading"
	LaneReady        LaneStatus = "ready"
	LaneError        LaneStatus = "error"
	LaneUnauthorized LaneStatus = "unauthorized"
)

// LaneState is a lane's status plus its last error, if any
type LaneState struct {
	Status    LaneStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// PageState is the overall page state
type PageState string

const (
	PageIdle         PageState = "idle"
	PageLoading      PageState = "loading"
	PageReady        PageState = "ready"
	PageAuthRequired PageState = "auth_required"
)

// Chart sources
const (
	ChartFromEndpoint = "endpoint"
	ChartComputed     = "computed"
)

// FinanceOverview is the page read model
type FinanceOverview struct {
	SessionID        string               `json:"sessionId"`
	State            PageState            `json:"state"`
	BalanceLane      LaneState            `json:"balanceLane"`
	AnalyticsLane    LaneState            `json:"analyticsLane"`
	AvailableBalance float64              `json:"availableBalance"`
	PendingBalance   float64              `json:"pendingBalance"`
	PendingSource    domain.PendingSource `json:"pendingSource"`
	MonthlyWithdrawn float64              `json:"monthlyWithdrawn"`
	Profit           domain.ProfitSummary `json:"profit"`
	Chart            []domain.ChartPoint  `json:"chart"`
	ChartSource      string               `json:"chartSource"`
	Filter           domain.FilterState   `json:"filter"`
	TotalRows        int                  `json:"totalRows"`
	FilteredRows     int                  `json:"filteredRows"`
	LoadedAt         *time.Time           `json:"loadedAt,omitempty"`
}

// PageConfig configures a FinancePage
type PageConfig struct {
	SessionID string
	Location  *time.Location
	Logger    *logging.Logger
	Metrics   Metrics
	Notifier  Notifier
	Now       func() time.Time
}

type renderFunc func(rows []domain.DerivedTransactionRow, filter domain.FilterState, now time.Time, loc *time.Location) (*export.File, error)

// FinancePage holds one console session's finance state. The balance and
// analytics lanes write disjoint fields; mu orders them against readers.
type FinancePage struct {
	api       FinanceAPI
	sessionID string
	loc       *time.Location
	logger    *logging.Logger
	metrics   Metrics
	notifier  Notifier
	now       func() time.Time
	render    renderFunc

	mu         sync.RWMutex
	generation uint64
	closed     bool
	state      PageState

	// balance lane
	balanceLane LaneState
	balance     domain.Balance

	// analytics lane
	analyticsLane LaneState
	rows          []domain.DerivedTransactionRow
	profit        domain.ProfitSummary
	chart         []domain.ChartPoint
	chartSource   string
	withdrawn     float64
	loadedAt      *time.Time

	filter   domain.FilterState
	filtered []domain.DerivedTransactionRow
}

// NewFinancePage creates an idle page. Nothing is fetched until Refresh.
func NewFinancePage(api FinanceAPI, cfg PageConfig) *FinancePage {
	p := &FinancePage{
		api:           api,
		sessionID:     cfg.SessionID,
		loc:           cfg.Location,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		notifier:      cfg.Notifier,
		now:           cfg.Now,
		render:        export.Transactions,
		state:         PageIdle,
		balanceLane:   LaneState{Status: LaneIdle},
		analyticsLane: LaneState{Status: LaneIdle},
		chartSource:   ChartComputed,
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	p.logger = p.logger.WithComponent("finance-page").WithSession(cfg.SessionID)
	if p.metrics == nil {
		p.metrics = noopMetrics{}
	}
	if p.notifier == nil {
		p.notifier = noopNotifier{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// SessionID returns the session the page belongs to
func (p *FinancePage) SessionID() string {
	return p.sessionID
}

// State returns the overall page state
func (p *FinancePage) State() PageState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// EnsureLoaded refreshes an idle page and is a no-op otherwise
func (p *FinancePage) EnsureLoaded(ctx context.Context) error {
	p.mu.RLock()
	state, closed := p.state, p.closed
	p.mu.RUnlock()

	switch {
	case closed:
		return apperrors.ErrSessionClosed()
	case state == PageAuthRequired:
		return errAuthRequired()
	case state == PageIdle:
		return p.Refresh(ctx)
	}
	return nil
}

func errAuthRequired() *apperrors.AppError {
	return apperrors.ErrUnauthorized("re-authentication required")
}

// Refresh runs both lanes and waits for them. Lane failures degrade the
// overview instead of failing the call; only a terminal authorization
// failure is returned. Lane errors are reset, the filter is kept.
func (p *FinancePage) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return apperrors.ErrSessionClosed()
	}
	if p.state == PageAuthRequired {
		p.mu.Unlock()
		return errAuthRequired()
	}
	p.generation++
	gen := p.generation
	p.state = PageLoading
	p.balanceLane = LaneState{Status: LaneLoading, UpdatedAt: p.balanceLane.UpdatedAt}
	p.analyticsLane = LaneState{Status: LaneLoading, UpdatedAt: p.analyticsLane.UpdatedAt}
	p.mu.Unlock()

	ctx, span := tracing.StartTimedSpan(ctx, tracer, "finance.refresh",
		attribute.String("finance.session_id", p.sessionID),
		attribute.Int64("finance.generation", int64(gen)),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.runBalanceLane(ctx, gen)
	}()
	go func() {
		defer wg.Done()
		p.runAnalyticsLane(ctx, gen)
	}()
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.generation {
		span.End(nil)
		return nil
	}
	if p.analyticsLane.Status == LaneUnauthorized {
		p.state = PageAuthRequired
		err := errAuthRequired()
		span.End(err)
		return err
	}
	p.state = PageReady
	span.End(nil)
	return nil
}

// current reports whether results of gen may still be applied. Callers
// hold mu.
func (p *FinancePage) current(gen uint64) bool {
	return !p.closed && gen == p.generation
}

func (p *FinancePage) runBalanceLane(ctx context.Context, gen uint64) {
	ctx, span := tracing.StartTimedSpan(ctx, tracer, "finance.lane.balance")
	raw, err := p.api.GetBalance(ctx)
	duration := span.End(err)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.current(gen) {
		p.metrics.RecordLane(LaneBalance, outcomeDiscarded, duration)
		return
	}
	now := p.now()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Balance lane failed, keeping previous values")
		p.balanceLane = LaneState{Status: LaneError, Error: err.Error(), UpdatedAt: p.balanceLane.UpdatedAt}
		p.metrics.RecordLane(LaneBalance, outcomeError, duration)
		return
	}
	p.balance = domain.ResolveBalance(raw)
	p.balanceLane = LaneState{Status: LaneReady, UpdatedAt: &now}
	p.metrics.RecordLane(LaneBalance, outcomeSuccess, duration)
}

// analyticsResult is the computed analytics slice, built outside the lock
type analyticsResult struct {
	rows        []domain.DerivedTransactionRow
	profit      domain.ProfitSummary
	chart       []domain.ChartPoint
	chartSource string
	withdrawn   float64
}

func (p *FinancePage) runAnalyticsLane(ctx context.Context, gen uint64) {
	ctx, span := tracing.StartTimedSpan(ctx, tracer, "finance.lane.analytics")

	var (
		wg       sync.WaitGroup
		series   []domain.Record
		chartErr error
		feed     *domain.FinanceFeed
		feedErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		series, chartErr = tracing.TracedOperation(ctx, tracer, "finance.fetch.chart", p.api.GetChartSeries)
	}()
	go func() {
		defer wg.Done()
		feed, feedErr = tracing.TracedOperation(ctx, tracer, "finance.fetch.feed", p.api.GetFinance)
	}()
	wg.Wait()

	if chartErr != nil {
		p.logger.WithContext(ctx).WithError(chartErr).Info("Chart series unavailable, using computed series")
	}

	var result analyticsResult
	if feedErr == nil {
		result = p.analyze(feed, series)
		span.SetAttributes(
			attribute.Int("finance.rows", len(result.rows)),
			attribute.String("finance.chart_source", result.chartSource),
		)
	}
	duration := span.End(feedErr)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.current(gen) {
		p.metrics.RecordLane(LaneAnalytics, outcomeDiscarded, duration)
		return
	}

	if feedErr != nil {
		status, outcome := LaneError, outcomeError
		if apperrors.IsAuthorization(feedErr) {
			status, outcome = LaneUnauthorized, outcomeUnauthorized
			p.logger.WithContext(ctx).WithError(feedErr).Warn("Finance feed rejected credentials")
		} else {
			p.logger.WithContext(ctx).WithError(feedErr).Warn("Analytics lane failed, keeping stale data")
		}
		p.analyticsLane = LaneState{Status: status, Error: feedErr.Error(), UpdatedAt: p.analyticsLane.UpdatedAt}
		p.metrics.RecordLane(LaneAnalytics, outcome, duration)
		return
	}

	now := p.now()
	p.rows = result.rows
	p.profit = result.profit
	p.chart = result.chart
	p.chartSource = result.chartSource
	p.withdrawn = result.withdrawn
	p.loadedAt = &now
	p.filtered = domain.ApplyFilter(p.rows, p.filter, p.loc)
	p.analyticsLane = LaneState{Status: LaneReady, UpdatedAt: &now}

	p.metrics.RecordLane(LaneAnalytics, outcomeSuccess, duration)
	p.metrics.RecordRowsDerived(len(result.rows))
	p.logger.Performance(ctx, "finance.analytics", duration, true, map[string]any{
		"rows":        len(result.rows),
		"chartSource": result.chartSource,
	})
}

func (p *FinancePage) analyze(feed *domain.FinanceFeed, series []domain.Record) analyticsResult {
	if feed == nil {
		feed = &domain.FinanceFeed{}
	}
	rows := domain.DeriveTransactionRows(feed.Payments, p.loc)
	result := analyticsResult{
		rows:      rows,
		profit:    domain.AggregateProfit(feed.Payments),
		withdrawn: domain.MonthlyWithdrawn(feed.Withdraws, p.now(), p.loc),
	}
	if points := domain.NormalizeChartSeries(series, p.loc); len(points) > 0 {
		result.chart, result.chartSource = points, ChartFromEndpoint
	} else {
		result.chart, result.chartSource = domain.BuildChartSeries(rows, p.loc), ChartComputed
	}
	return result
}

// Close tears the page down. Results arriving afterwards are discarded.
func (p *FinancePage) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.generation++
	p.logger.Debug("Finance page closed")
}

// Closed reports whether Close was called
func (p *FinancePage) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Overview returns a snapshot of the read model
func (p *FinancePage) Overview() FinanceOverview {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pending, source := domain.ResolvePending(p.balance, p.rows)
	return FinanceOverview{
		SessionID:        p.sessionID,
		State:            p.state,
		BalanceLane:      p.balanceLane,
		AnalyticsLane:    p.analyticsLane,
		AvailableBalance: p.balance.Available,
		PendingBalance:   pending,
		PendingSource:    source,
		MonthlyWithdrawn: p.withdrawn,
		Profit:           p.profit,
		Chart:            append([]domain.ChartPoint{}, p.chart...),
		ChartSource:      p.chartSource,
		Filter:           p.filter.Clone(),
		TotalRows:        len(p.rows),
		FilteredRows:     len(p.filtered),
		LoadedAt:         p.loadedAt,
	}
}

// Rows returns the filtered rows
func (p *FinancePage) Rows() []domain.DerivedTransactionRow {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.DerivedTransactionRow{}, p.filtered...)
}

// Filter returns the current filter
func (p *FinancePage) Filter() domain.FilterState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter.Clone()
}

// mutateFilter applies fn to the filter and re-filters the cached rows.
// No fetch is made. The filter is left untouched when fn fails.
func (p *FinancePage) mutateFilter(fn func(f *domain.FilterState) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return apperrors.ErrSessionClosed()
	}
	next := p.filter.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	p.filter = next
	p.filtered = domain.ApplyFilter(p.rows, p.filter, p.loc)
	return nil
}

// SetDateRange sets a manual inclusive range and clears the quick range
func (p *FinancePage) SetDateRange(start, end *time.Time) error {
	return p.mutateFilter(func(f *domain.FilterState) error {
		f.SetDateRange(start, end)
		return nil
	})
}

// SetQuickRange resolves q against now in the page's zone
func (p *FinancePage) SetQuickRange(q domain.QuickRange) error {
	return p.mutateFilter(func(f *domain.FilterState) error {
		if err := f.SetQuickRange(q, p.now(), p.loc); err != nil {
			return apperrors.ErrValidation(fmt.Sprintf("unknown quick range %q", q)).Wrap(err)
		}
		return nil
	})
}

// SetTypes replaces the category filter. An empty set matches every row.
func (p *FinancePage) SetTypes(types []domain.Category) error {
	return p.mutateFilter(func(f *domain.FilterState) error {
		f.SetTypes(types)
		return nil
	})
}

// SetSearchText replaces the free-text filter
func (p *FinancePage) SetSearchText(text string) error {
	return p.mutateFilter(func(f *domain.FilterState) error {
		f.SetSearchText(text)
		return nil
	})
}

// Export renders the current filtered view as CSV
func (p *FinancePage) Export() (*export.File, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, apperrors.ErrSessionClosed()
	}
	rows := append([]domain.DerivedTransactionRow{}, p.filtered...)
	filter := p.filter.Clone()
	p.mu.RUnlock()

	return p.render(rows, filter, p.now(), p.loc)
}

// ExportTransactionsToCSV exports the filtered view and reports the outcome
// to the notifier. A panic while rendering is recovered and reported.
func (p *FinancePage) ExportTransactionsToCSV(ctx context.Context) (file *export.File, err error) {
	ctx, span := tracing.StartTimedSpan(ctx, tracer, "finance.export",
		attribute.String("finance.session_id", p.sessionID),
	)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Panic(ctx, r)
			file = nil
			err = apperrors.ErrInternal("export failed").Wrap(fmt.Errorf("panic: %v", r))
		}
		span.End(err)
		p.reportExport(ctx, file, err)
	}()

	return p.Export()
}

func (p *FinancePage) reportExport(ctx context.Context, file *export.File, err error) {
	if err != nil {
		p.metrics.RecordExport(false, 0)
		p.notifier.Notify(ctx, domain.Notification{
			Level:     domain.NotificationError,
			Title:     "Xuất file thất bại",
			Message:   err.Error(),
			SessionID: p.sessionID,
		})
		return
	}
	p.metrics.RecordExport(true, file.Rows)
	p.logger.Audit(ctx, "export", "transactions", p.sessionID, map[string]any{
		"filename": file.Filename,
		"rows":     file.Rows,
	})
	p.notifier.Notify(ctx, domain.Notification{
		Level:     domain.NotificationSuccess,
		Title:     "Xuất file thành công",
		Message:   fmt.Sprintf("Đã xuất %d giao dịch", file.Rows),
		SessionID: p.sessionID,
		Filename:  file.Filename,
		Rows:      file.Rows,
	})
}
