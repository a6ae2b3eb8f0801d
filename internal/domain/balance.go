package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingSource names where the pending balance figure came from.
type PendingSource string

const (
	PendingFromEndpoint PendingSource = "endpoint"
	PendingFromPayments PendingSource = "payments"
)

// Balance is the seller's balance as reported by the balance endpoint.
// Pending is nil when the endpoint omitted it.
type Balance struct {
	Available float64
	Pending   *float64
}

var (
	availableAliases = []string{"balance", "available_balance", "availableBalance", "available"}
	pendingAliases   = []string{"pending_balance", "pendingBalance", "pending"}
)

// ResolveBalance reads the balance payload.
func ResolveBalance(raw Record) Balance {
	b := Balance{Available: raw.Number(availableAliases...)}
	if v := raw.First(pendingAliases...); v != nil {
		pending := ToSafeNumber(v)
		b.Pending = &pending
	}
	return b
}

// PendingFromRows sums the amounts of rows in a pending status.
func PendingFromRows(rows []DerivedTransactionRow) float64 {
	total := decimal.Zero
	for _, row := range rows {
		if IsPending(row.Status) {
			total = total.Add(fromFloat(row.Amount))
		}
	}
	return total.InexactFloat64()
}

// ResolvePending prefers the endpoint value and falls back to the rows.
// The two are not reconciled.
func ResolvePending(b Balance, rows []DerivedTransactionRow) (float64, PendingSource) {
	if b.Pending != nil {
		return *b.Pending, PendingFromEndpoint
	}
	return PendingFromRows(rows), PendingFromPayments
}

var withdrawTimestampAliases = []string{"created_at", "createdAt", "requested_at", "date"}

// MonthlyWithdrawn sums completed withdrawals dated in the calendar month
// of now, evaluated in loc.
func MonthlyWithdrawn(withdraws []RawWithdrawal, now time.Time, loc *time.Location) float64 {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	total := decimal.Zero
	for _, w := range withdraws {
		if !IsWithdrawCompleted(w.String("status")) {
			continue
		}
		ts, ok := ParseTimestamp(w.First(withdrawTimestampAliases...), loc)
		if !ok {
			continue
		}
		ts = ts.In(loc)
		if ts.Year() != now.Year() || ts.Month() != now.Month() {
			continue
		}
		total = total.Add(toDecimal(w.First("amount")))
	}
	return total.InexactFloat64()
}
