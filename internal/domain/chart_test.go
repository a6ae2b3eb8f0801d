package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(t time.Time) *time.Time { return &t }

// TestBuildChartSeriesSameDay tests that rows sharing a day are summed
func TestBuildChartSeriesSameDay(t *testing.T) {
	day := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	rows := []DerivedTransactionRow{
		{Timestamp: at(day), Amount: 10000, GrossProfit: 1000},
		{Timestamp: at(day.Add(3 * time.Hour)), Amount: 20000, GrossProfit: 2000},
	}

	points := BuildChartSeries(rows, time.UTC)

	require.Len(t, points, 2)
	assert.Equal(t, ChartPoint{Date: "2024-04-10", Metric: MetricRevenue, Value: 30000}, points[0])
	assert.Equal(t, ChartPoint{Date: "2024-04-10", Metric: MetricGrossProfit, Value: 3000}, points[1])
}

// TestBuildChartSeriesOrdering tests sorting, two points per day and skipped rows
func TestBuildChartSeriesOrdering(t *testing.T) {
	rows := []DerivedTransactionRow{
		{Timestamp: at(time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC)), Amount: 3},
		{Amount: 999, GrossProfit: 999},
		{Timestamp: at(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)), Amount: 1},
		{Timestamp: at(time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)), Amount: 2},
		{Timestamp: at(time.Date(2024, 4, 10, 5, 0, 0, 0, time.UTC)), Amount: 4},
	}

	points := BuildChartSeries(rows, time.UTC)

	require.Len(t, points, 6)
	days := map[string]int{}
	for i, p := range points {
		days[p.Date]++
		if i > 0 {
			assert.LessOrEqual(t, points[i-1].Date, p.Date)
		}
		if i%2 == 0 {
			assert.Equal(t, MetricRevenue, p.Metric)
		} else {
			assert.Equal(t, MetricGrossProfit, p.Metric)
		}
	}
	assert.Equal(t, map[string]int{"2024-04-10": 2, "2024-04-11": 2, "2024-04-12": 2}, days)
	assert.Equal(t, 5.0, points[0].Value)
}

// TestBuildChartSeriesTimezone tests that days are computed in the source zone
func TestBuildChartSeriesTimezone(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	rows := []DerivedTransactionRow{
		{Timestamp: at(time.Date(2024, 4, 10, 18, 0, 0, 0, time.UTC)), Amount: 1},
	}

	points := BuildChartSeries(rows, hcm)

	require.Len(t, points, 2)
	assert.Equal(t, "2024-04-11", points[0].Date)
}

// TestBuildChartSeriesEmpty tests empty input
func TestBuildChartSeriesEmpty(t *testing.T) {
	assert.Empty(t, BuildChartSeries(nil, time.UTC))
}

// TestNormalizeChartSeries tests cleanup of an upstream series
func TestNormalizeChartSeries(t *testing.T) {
	raw := []Record{
		{"date": "2024-04-11", "metric": MetricGrossProfit, "value": "200"},
		{"date": "2024-04-11", "metric": MetricRevenue, "value": 1000.0},
		{"metric": MetricRevenue, "value": 5.0},
		{"date": "2024-04-10T10:00:00Z", "metric": MetricRevenue, "value": "oops"},
	}

	points := NormalizeChartSeries(raw, time.UTC)

	require.Len(t, points, 3)
	assert.Equal(t, ChartPoint{Date: "2024-04-10", Metric: MetricRevenue, Value: 0}, points[0])
	assert.Equal(t, ChartPoint{Date: "2024-04-11", Metric: MetricRevenue, Value: 1000}, points[1])
	assert.Equal(t, ChartPoint{Date: "2024-04-11", Metric: MetricGrossProfit, Value: 200}, points[2])
}
