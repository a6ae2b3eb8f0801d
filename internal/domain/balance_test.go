package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMonthlyWithdrawn tests current-month filtering and status synonyms
func TestMonthlyWithdrawn(t *testing.T) {
	now := time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)

	thisMonth := []RawWithdrawal{{"amount": 200000.0, "status": "approved", "created_at": "2024-06-02T08:00:00Z"}}
	lastMonth := []RawWithdrawal{{"amount": 200000.0, "status": "approved", "created_at": "2024-05-28T08:00:00Z"}}

	assert.Equal(t, 200000.0, MonthlyWithdrawn(thisMonth, now, time.UTC))
	assert.Equal(t, 0.0, MonthlyWithdrawn(lastMonth, now, time.UTC))
}

// TestMonthlyWithdrawnSkipsIncomplete tests status and timestamp exclusion
func TestMonthlyWithdrawnSkipsIncomplete(t *testing.T) {
	now := time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)
	withdraws := []RawWithdrawal{
		{"amount": "50000", "status": "Đã duyệt", "createdAt": "2024-06-01 10:00:00"},
		{"amount": 70000.0, "status": "pending", "created_at": "2024-06-05T00:00:00Z"},
		{"amount": 90000.0, "status": "completed"},
		{"amount": "x", "status": "done", "created_at": "2024-06-06T00:00:00Z"},
		{"amount": 2024.0, "status": "paid", "created_at": "2023-06-06T00:00:00Z"},
	}

	assert.Equal(t, 50000.0, MonthlyWithdrawn(withdraws, now, time.UTC))
}

// TestMonthlyWithdrawnTimezone tests month boundaries in the source zone
func TestMonthlyWithdrawnTimezone(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	now := time.Date(2024, 7, 1, 1, 0, 0, 0, hcm)
	withdraws := []RawWithdrawal{{"amount": 10.0, "status": "success", "created_at": "2024-06-30T18:30:00Z"}}

	assert.Equal(t, 10.0, MonthlyWithdrawn(withdraws, now, hcm))
}

// TestResolvePending tests endpoint preference over payment-derived values
func TestResolvePending(t *testing.T) {
	rows := []DerivedTransactionRow{
		{Status: "pending", Amount: 3000},
		{Status: "Đang xử lý", Amount: 2000},
		{Status: "success", Amount: 9999},
	}

	b := ResolveBalance(Record{"balance": "150000", "pending_balance": 4000.0})
	assert.Equal(t, 150000.0, b.Available)
	require.NotNil(t, b.Pending)
	pending, source := ResolvePending(b, rows)
	assert.Equal(t, 4000.0, pending)
	assert.Equal(t, PendingFromEndpoint, source)

	b = ResolveBalance(Record{"balance": 150000.0})
	assert.Nil(t, b.Pending)
	pending, source = ResolvePending(b, rows)
	assert.Equal(t, 5000.0, pending)
	assert.Equal(t, PendingFromPayments, source)
}

// TestResolveBalanceGarbage tests degraded balance payloads
func TestResolveBalanceGarbage(t *testing.T) {
	b := ResolveBalance(Record{"balance": "n/a", "pending_balance": "??"})
	assert.Equal(t, 0.0, b.Available)
	require.NotNil(t, b.Pending)
	assert.Equal(t, 0.0, *b.Pending)

	assert.Equal(t, Balance{}, ResolveBalance(nil))
}
