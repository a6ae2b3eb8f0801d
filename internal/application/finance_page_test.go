package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-console/finance-portal/internal/domain"
	"github.com/market-console/finance-portal/internal/export"
	apperrors "github.com/market-console/finance-portal/pkg/errors"
)

var ict = time.FixedZone("ICT", 7*3600)

func fixedNow() time.Time {
	return time.Date(2024, 5, 20, 12, 0, 0, 0, ict)
}

type fakeAPI struct {
	balance    domain.Record
	balanceErr error
	series     []domain.Record
	seriesErr  error
	feed       *domain.FinanceFeed
	feedErr    error

	// optional gates, closed by the test to release a call
	balanceGate chan struct{}
	feedGate    chan struct{}

	balanceCalls atomic.Int32
	seriesCalls  atomic.Int32
	feedCalls    atomic.Int32

	mu sync.Mutex
}

func (f *fakeAPI) GetBalance(ctx context.Context) (domain.Record, error) {
	f.balanceCalls.Add(1)
	if f.balanceGate != nil {
		<-f.balanceGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

func (f *fakeAPI) GetChartSeries(ctx context.Context) ([]domain.Record, error) {
	f.seriesCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series, f.seriesErr
}

func (f *fakeAPI) GetFinance(ctx context.Context) (*domain.FinanceFeed, error) {
	f.feedCalls.Add(1)
	if f.feedGate != nil {
		<-f.feedGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feed, f.feedErr
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) calls() int32 {
	return f.balanceCalls.Load() + f.seriesCalls.Load() + f.feedCalls.Load()
}

type laneCall struct{ lane, outcome string }

type fakeMetrics struct {
	mu      sync.Mutex
	lanes   []laneCall
	rows    []int
	exports []bool
}

func (m *fakeMetrics) RecordLane(lane, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lanes = append(m.lanes, laneCall{lane, outcome})
}

func (m *fakeMetrics) RecordRowsDerived(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, n)
}

func (m *fakeMetrics) RecordExport(success bool, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, success)
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
}

func sampleFeed() *domain.FinanceFeed {
	return &domain.FinanceFeed{
		Payments: []domain.RawPayment{
			{
				"id": "TXN-1", "amount": 100000, "status": "success",
				"created_at": "2024-05-10T10:00:00+07:00",
				"fees":       map[string]interface{}{"platform_fee": 5000},
				"order": map[string]interface{}{
					"id":    "ORD-1",
					"items": []interface{}{map[string]interface{}{"quantity": 2, "cost_price": 20000}},
				},
			},
			{
				"id": "TXN-2", "amount": 50000, "status": "pending",
				"created_at": "2024-05-12T09:00:00+07:00",
				"order_id":   "ORD-2",
			},
			{
				"id": "TXN-3", "amount": 20000, "status": "refunded", "type": "refund",
				"created_at":  "2024-04-20T10:00:00+07:00",
				"description": "Hoàn tiền, đơn ORD-9",
			},
		},
		Withdraws: []domain.RawWithdrawal{
			{"amount": 200000, "status": "approved", "created_at": "2024-05-02T08:00:00+07:00"},
			{"amount": 70000, "status": "approved", "created_at": "2024-04-28T08:00:00+07:00"},
			{"amount": 90000, "status": "rejected", "created_at": "2024-05-03T08:00:00+07:00"},
		},
	}
}

func newTestPage(api FinanceAPI) (*FinancePage, *fakeMetrics, *fakeNotifier) {
	m := &fakeMetrics{}
	n := &fakeNotifier{}
	page := NewFinancePage(api, PageConfig{
		SessionID: "sess-1",
		Location:  ict,
		Metrics:   m,
		Notifier:  n,
		Now:       fixedNow,
	})
	return page, m, n
}

func TestRefreshPopulatesOverview(t *testing.T) {
	api := &fakeAPI{
		balance: domain.Record{"balance": 1500000, "pending_balance": 300000},
		feed:    sampleFeed(),
	}
	page, m, _ := newTestPage(api)
	assert.Equal(t, PageIdle, page.State())

	require.NoError(t, page.Refresh(context.Background()))

	o := page.Overview()
	assert.Equal(t, PageReady, o.State)
	assert.Equal(t, LaneReady, o.BalanceLane.Status)
	assert.Equal(t, LaneReady, o.AnalyticsLane.Status)
	assert.Equal(t, 1500000.0, o.AvailableBalance)
	assert.Equal(t, 300000.0, o.PendingBalance)
	assert.Equal(t, domain.PendingFromEndpoint, o.PendingSource)
	assert.Equal(t, 200000.0, o.MonthlyWithdrawn)
	assert.Equal(t, 3, o.TotalRows)
	assert.Equal(t, 3, o.FilteredRows)
	assert.Equal(t, ChartComputed, o.ChartSource)
	assert.Len(t, o.Chart, 6)
	require.NotNil(t, o.LoadedAt)

	assert.Equal(t, 1, o.Profit.OrderCount)
	assert.Equal(t, 100000.0, o.Profit.TotalRevenue)
	assert.Equal(t, 40000.0, o.Profit.TotalCOGS)
	assert.Equal(t, 55000.0, o.Profit.TotalGrossProfit)

	assert.ElementsMatch(t, []laneCall{
		{LaneBalance, outcomeSuccess},
		{LaneAnalytics, outcomeSuccess},
	}, m.lanes)
	assert.Equal(t, []int{3}, m.rows)
}

func TestPendingFallsBackToPayments(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{"balance": 10}, feed: sampleFeed()}
	page, _, _ := newTestPage(api)

	require.NoError(t, page.Refresh(context.Background()))

	o := page.Overview()
	assert.Equal(t, 50000.0, o.PendingBalance)
	assert.Equal(t, domain.PendingFromPayments, o.PendingSource)
}

func TestUpstreamChartSeriesWins(t *testing.T) {
	api := &fakeAPI{
		balance: domain.Record{},
		feed:    sampleFeed(),
		series: []domain.Record{
			{"date": "2024-05-02", "metric": domain.MetricGrossProfit, "value": 7},
			{"date": "2024-05-01", "metric": domain.MetricRevenue, "value": 9},
			{"metric": domain.MetricRevenue, "value": 1},
		},
	}
	page, _, _ := newTestPage(api)

	require.NoError(t, page.Refresh(context.Background()))

	o := page.Overview()
	assert.Equal(t, ChartFromEndpoint, o.ChartSource)
	require.Len(t, o.Chart, 2)
	assert.Equal(t, "2024-05-01", o.Chart[0].Date)
}

func TestChartFailureFallsBackToComputed(t *testing.T) {
	api := &fakeAPI{
		balance:   domain.Record{},
		feed:      sampleFeed(),
		seriesErr: apperrors.ErrServiceUnavailable("chart"),
	}
	page, _, _ := newTestPage(api)

	require.NoError(t, page.Refresh(context.Background()))

	o := page.Overview()
	assert.Equal(t, LaneReady, o.AnalyticsLane.Status)
	assert.Equal(t, ChartComputed, o.ChartSource)
	assert.NotEmpty(t, o.Chart)
}

func TestAnalyticsFailureKeepsStaleData(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{"balance": 5}, feed: sampleFeed()}
	page, m, _ := newTestPage(api)
	require.NoError(t, page.Refresh(context.Background()))

	api.set(func(f *fakeAPI) { f.feedErr = apperrors.ErrServiceUnavailable("finance") })
	require.NoError(t, page.Refresh(context.Background()))

	o := page.Overview()
	assert.Equal(t, PageReady, o.State)
	assert.Equal(t, LaneError, o.AnalyticsLane.Status)
	assert.NotEmpty(t, o.AnalyticsLane.Error)
	assert.Equal(t, LaneReady, o.BalanceLane.Status)
	assert.Equal(t, 3, o.TotalRows)
	assert.Contains(t, m.lanes, laneCall{LaneAnalytics, outcomeError})

	// a later successful refresh clears the lane error
	api.set(func(f *fakeAPI) { f.feedErr = nil })
	require.NoError(t, page.Refresh(context.Background()))
	o = page.Overview()
	assert.Equal(t, LaneReady, o.AnalyticsLane.Status)
	assert.Empty(t, o.AnalyticsLane.Error)
}

func TestBalanceFailureKeepsPriorValues(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{"balance": 42}, feed: sampleFeed()}
	page, _, _ := newTestPage(api)
	require.NoError(t, page.Refresh(context.Background()))

	api.set(func(f *fakeAPI) { f.balanceErr = errors.New("connection reset") })
	require.NoError(t, page.Refresh(context.Background()))

	o := page.Overview()
	assert.Equal(t, PageReady, o.State)
	assert.Equal(t, LaneError, o.BalanceLane.Status)
	assert.Equal(t, LaneReady, o.AnalyticsLane.Status)
	assert.Equal(t, 42.0, o.AvailableBalance)
}

func TestUnauthorizedIsTerminal(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{}, feedErr: apperrors.ErrUpstreamStatus("finance", 401)}
	page, m, _ := newTestPage(api)

	err := page.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthorization(err))

	o := page.Overview()
	assert.Equal(t, PageAuthRequired, o.State)
	assert.Equal(t, LaneUnauthorized, o.AnalyticsLane.Status)
	assert.Contains(t, m.lanes, laneCall{LaneAnalytics, outcomeUnauthorized})

	before := api.calls()
	err = page.Refresh(context.Background())
	assert.True(t, apperrors.IsAuthorization(err))
	assert.True(t, apperrors.IsAuthorization(page.EnsureLoaded(context.Background())))
	assert.Equal(t, before, api.calls())
}

func TestLanesDoNotBlockEachOther(t *testing.T) {
	api := &fakeAPI{
		balance:     domain.Record{"balance": 99},
		feed:        sampleFeed(),
		balanceGate: make(chan struct{}),
	}
	page, _, _ := newTestPage(api)

	done := make(chan error, 1)
	go func() { done <- page.Refresh(context.Background()) }()

	require.Eventually(t, func() bool {
		return page.Overview().AnalyticsLane.Status == LaneReady
	}, time.Second, 5*time.Millisecond)

	o := page.Overview()
	assert.Equal(t, PageLoading, o.State)
	assert.Equal(t, LaneLoading, o.BalanceLane.Status)
	assert.Equal(t, 3, o.TotalRows)

	close(api.balanceGate)
	require.NoError(t, <-done)
	assert.Equal(t, 99.0, page.Overview().AvailableBalance)
}

func TestCloseDiscardsLateResults(t *testing.T) {
	api := &fakeAPI{
		balance:  domain.Record{"balance": 99},
		feed:     sampleFeed(),
		feedGate: make(chan struct{}),
	}
	page, m, _ := newTestPage(api)

	done := make(chan error, 1)
	go func() { done <- page.Refresh(context.Background()) }()

	require.Eventually(t, func() bool {
		return page.Overview().BalanceLane.Status == LaneReady
	}, time.Second, 5*time.Millisecond)

	page.Close()
	close(api.feedGate)
	require.NoError(t, <-done)

	o := page.Overview()
	assert.Zero(t, o.TotalRows)
	assert.Equal(t, LaneLoading, o.AnalyticsLane.Status)
	assert.Contains(t, m.lanes, laneCall{LaneAnalytics, outcomeDiscarded})

	assert.True(t, page.Closed())
	err := page.Refresh(context.Background())
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeGone, appErr.Code)
}

func TestFiltersNeverFetch(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{}, feed: sampleFeed()}
	page, _, _ := newTestPage(api)
	require.NoError(t, page.Refresh(context.Background()))
	before := api.calls()

	require.NoError(t, page.SetTypes([]domain.Category{domain.CategoryRefund}))
	rows := page.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "TXN-3", rows[0].TransactionID)

	require.NoError(t, page.SetTypes(nil))
	require.NoError(t, page.SetSearchText("ord-2"))
	rows = page.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "TXN-2", rows[0].TransactionID)

	require.NoError(t, page.SetSearchText(""))
	require.NoError(t, page.SetQuickRange(domain.QuickRangeThisMonth))
	assert.Len(t, page.Rows(), 2)
	assert.Equal(t, domain.QuickRangeThisMonth, page.Filter().QuickRange)

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, ict)
	end := time.Date(2024, 4, 30, 0, 0, 0, 0, ict)
	require.NoError(t, page.SetDateRange(&start, &end))
	assert.Len(t, page.Rows(), 1)
	assert.Empty(t, page.Filter().QuickRange)

	assert.Equal(t, before, api.calls())
}

func TestUnknownQuickRangeLeavesFilter(t *testing.T) {
	page, _, _ := newTestPage(&fakeAPI{feed: sampleFeed()})
	require.NoError(t, page.SetQuickRange(domain.QuickRangeToday))

	err := page.SetQuickRange("fortnight")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
	assert.ErrorIs(t, err, domain.ErrUnknownQuickRange)
	assert.Equal(t, domain.QuickRangeToday, page.Filter().QuickRange)
}

func TestRefreshKeepsFilter(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{}, feed: sampleFeed()}
	page, _, _ := newTestPage(api)
	require.NoError(t, page.SetTypes([]domain.Category{domain.CategorySale}))

	require.NoError(t, page.Refresh(context.Background()))

	assert.Equal(t, []domain.Category{domain.CategorySale}, page.Filter().Types)
	assert.Len(t, page.Rows(), 2)
	assert.Equal(t, 2, page.Overview().FilteredRows)
}

func TestEnsureLoadedRefreshesOnce(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{}, feed: sampleFeed()}
	page, _, _ := newTestPage(api)

	require.NoError(t, page.EnsureLoaded(context.Background()))
	require.NoError(t, page.EnsureLoaded(context.Background()))

	assert.EqualValues(t, 1, api.feedCalls.Load())
	assert.EqualValues(t, 1, api.balanceCalls.Load())
}

func TestExportTransactionsToCSV(t *testing.T) {
	api := &fakeAPI{balance: domain.Record{}, feed: sampleFeed()}
	page, m, n := newTestPage(api)
	require.NoError(t, page.Refresh(context.Background()))
	require.NoError(t, page.SetQuickRange(domain.QuickRangeThisMonth))

	file, err := page.ExportTransactionsToCSV(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "giao-dich_20240501-20240520.csv", file.Filename)
	assert.Equal(t, 2, file.Rows)
	assert.Equal(t, export.ContentType, file.ContentType)

	require.Len(t, n.got, 1)
	assert.Equal(t, domain.NotificationSuccess, n.got[0].Level)
	assert.Equal(t, "sess-1", n.got[0].SessionID)
	assert.Equal(t, file.Filename, n.got[0].Filename)
	assert.Equal(t, []bool{true}, m.exports)
}

func TestExportPanicIsReported(t *testing.T) {
	page, m, n := newTestPage(&fakeAPI{feed: sampleFeed()})
	page.render = func([]domain.DerivedTransactionRow, domain.FilterState, time.Time, *time.Location) (*export.File, error) {
		panic("writer exploded")
	}

	var (
		file *export.File
		err  error
	)
	require.NotPanics(t, func() {
		file, err = page.ExportTransactionsToCSV(context.Background())
	})
	assert.Nil(t, file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writer exploded")

	require.Len(t, n.got, 1)
	assert.Equal(t, domain.NotificationError, n.got[0].Level)
	assert.Equal(t, []bool{false}, m.exports)
}

func TestClosedPageRejectsMutations(t *testing.T) {
	page, _, n := newTestPage(&fakeAPI{})
	page.Close()
	page.Close()

	for _, err := range []error{
		page.SetSearchText("x"),
		page.SetTypes(nil),
		page.SetDateRange(nil, nil),
		page.SetQuickRange(domain.QuickRangeToday),
		page.EnsureLoaded(context.Background()),
	} {
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeGone, appErr.Code)
	}

	_, err := page.ExportTransactionsToCSV(context.Background())
	assert.Error(t, err)
	require.Len(t, n.got, 1)
	assert.Equal(t, domain.NotificationError, n.got[0].Level)
}
