package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-console/finance-portal/internal/domain"
)

func parse(t *testing.T, f *File) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(f.Data, utf8BOM))
	records, err := csv.NewReader(bytes.NewReader(f.Data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	return records
}

// TestTransactionsQuotesDelimiter tests that a comma in a field survives a re-parse
func TestTransactionsQuotesDelimiter(t *testing.T) {
	rows := []domain.DerivedTransactionRow{
		{TransactionID: "TXN-1", Description: "Thanh toán, đơn 1", Category: domain.CategorySale, Amount: 1000, NetAmount: 1000, GrossProfit: 1000},
	}

	f, err := Transactions(rows, domain.FilterState{}, time.Now(), time.UTC)
	require.NoError(t, err)

	assert.Contains(t, string(f.Data), `"Thanh toán, đơn 1"`)
	records := parse(t, f)
	require.Len(t, records, 2)
	assert.Len(t, records[1], len(Header))
	assert.Equal(t, "Thanh toán, đơn 1", records[1][4])
}

// TestTransactionsColumns tests header order and a fully populated row
func TestTransactionsColumns(t *testing.T) {
	ts := time.Date(2024, 5, 1, 3, 4, 5, 0, time.UTC)
	balance := 250000.0
	rows := []domain.DerivedTransactionRow{{
		TransactionID: "TXN-2", OrderID: "ORD-2", Timestamp: &ts,
		Description: "say \"hi\"", Category: domain.CategoryRefund,
		Status: "refunded", PayoutStatus: "settled",
		Amount: 100000, PlatformFee: 1, ShippingFee: 2, PaymentFee: 3, ServiceFee: 4,
		AdvertisementFee: 5, Discount: 6, Tax: 7, COGS: 8, NetAmount: 99972, GrossProfit: 99964.5,
		BalanceAfter: &balance,
	}}

	f, err := Transactions(rows, domain.FilterState{}, time.Now(), time.FixedZone("ICT", 7*3600))
	require.NoError(t, err)

	records := parse(t, f)
	assert.Equal(t, Header, records[0])
	assert.Len(t, Header, 18)
	assert.Equal(t, []string{
		"TXN-2", "ORD-2", "2024-05-01 10:04:05", "Hoàn tiền", "say \"hi\"", "refunded / settled",
		"100000", "1", "2", "3", "4", "5", "6", "7", "8", "99972", "99964.5", "250000",
	}, records[1])
	assert.Equal(t, 1, f.Rows)
	assert.Equal(t, ContentType, f.ContentType)
}

// TestTransactionsEmpty tests that an empty set still carries the header
func TestTransactionsEmpty(t *testing.T) {
	f, err := Transactions(nil, domain.FilterState{}, time.Now(), nil)
	require.NoError(t, err)

	records := parse(t, f)
	require.Len(t, records, 1)
	assert.Equal(t, 0, f.Rows)
}

// TestFilename tests range-based and timestamp-based names
func TestFilename(t *testing.T) {
	now := time.Date(2024, 6, 9, 14, 5, 7, 0, time.UTC)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "giao-dich_20240609-140507.csv", Filename(domain.FilterState{}, now, time.UTC))
	assert.Equal(t, "giao-dich_20240601-20240607.csv", Filename(domain.FilterState{Start: &start, End: &end}, now, time.UTC))
	assert.Equal(t, "giao-dich_20240601-20240609.csv", Filename(domain.FilterState{Start: &start}, now, time.UTC))
}
