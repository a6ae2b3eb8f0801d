package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Chart metric names as rendered by the console.
const (
	MetricRevenue     = "Doanh thu"
	MetricGrossProfit = "Lợi nhuận gộp"
)

// DayLayout is the calendar-day format used for chart buckets.
const DayLayout = "2006-01-02"

// ChartPoint is one long-form chart entry.
type ChartPoint struct {
	Date   string  `json:"date"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

type dayTotals struct {
	revenue decimal.Decimal
	gross   decimal.Decimal
}

// BuildChartSeries buckets rows by calendar day in loc and emits a revenue
// and a gross profit point per day, ascending. Rows without a timestamp are
// skipped.
func BuildChartSeries(rows []DerivedTransactionRow, loc *time.Location) []ChartPoint {
	if loc == nil {
		loc = time.UTC
	}
	buckets := make(map[string]*dayTotals)
	for _, row := range rows {
		if row.Timestamp == nil {
			continue
		}
		day := row.Timestamp.In(loc).Format(DayLayout)
		totals, ok := buckets[day]
		if !ok {
			totals = &dayTotals{}
			buckets[day] = totals
		}
		totals.revenue = totals.revenue.Add(fromFloat(row.Amount))
		totals.gross = totals.gross.Add(fromFloat(row.GrossProfit))
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	points := make([]ChartPoint, 0, len(days)*2)
	for _, day := range days {
		totals := buckets[day]
		points = append(points,
			ChartPoint{Date: day, Metric: MetricRevenue, Value: totals.revenue.InexactFloat64()},
			ChartPoint{Date: day, Metric: MetricGrossProfit, Value: totals.gross.InexactFloat64()},
		)
	}
	return points
}

// NormalizeChartSeries cleans an upstream series: entries without a date
// are dropped, values are coerced and the result is sorted by date with
// revenue ahead of gross profit.
func NormalizeChartSeries(raw []Record, loc *time.Location) []ChartPoint {
	points := make([]ChartPoint, 0, len(raw))
	for _, entry := range raw {
		date := entry.String("date", "day")
		if date == "" {
			continue
		}
		if ts, ok := ParseTimestamp(date, loc); ok {
			if loc != nil {
				ts = ts.In(loc)
			}
			date = ts.Format(DayLayout)
		}
		points = append(points, ChartPoint{
			Date:   date,
			Metric: entry.String("metric", "name"),
			Value:  entry.Number("value"),
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Date != points[j].Date {
			return points[i].Date < points[j].Date
		}
		return metricRank(points[i].Metric) < metricRank(points[j].Metric)
	})
	return points
}

func metricRank(metric string) int {
	switch metric {
	case MetricRevenue:
		return 0
	case MetricGrossProfit:
		return 1
	default:
		return 2
	}
}
