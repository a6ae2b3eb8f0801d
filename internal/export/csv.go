package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/market-console/finance-portal/internal/domain"
)

// ContentType of the generated file.
const ContentType = "text/csv; charset=utf-8"

// utf8BOM lets spreadsheet apps detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Header is the fixed column order consumers parse against.
var Header = []string{
	"Mã giao dịch",
	"Mã đơn hàng",
	"Thời gian",
	"Loại",
	"Mô tả",
	"Trạng thái",
	"Số tiền",
	"Phí nền tảng",
	"Phí vận chuyển",
	"Phí thanh toán",
	"Phí dịch vụ",
	"Phí quảng cáo",
	"Giảm giá",
	"Thuế",
	"Giá vốn",
	"Thực nhận",
	"Lợi nhuận gộp",
	"Số dư sau",
}

const timestampLayout = "2006-01-02 15:04:05"

// File is a rendered export.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// Transactions renders rows as CSV. The filename encodes the filter's date
// range, or now when no range is active.
func Transactions(rows []domain.DerivedTransactionRow, filter domain.FilterState, now time.Time, loc *time.Location) (*File, error) {
	if loc == nil {
		loc = time.UTC
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(record(row, loc)); err != nil {
			return nil, fmt.Errorf("write row %s: %w", row.Key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &File{
		Filename:    Filename(filter, now, loc),
		ContentType: ContentType,
		Data:        buf.Bytes(),
		Rows:        len(rows),
	}, nil
}

// Filename returns giao-dich_<start>-<end>.csv for an active range and
// giao-dich_<timestamp>.csv otherwise. An open bound uses now.
func Filename(filter domain.FilterState, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	if !filter.HasDateRange() {
		return fmt.Sprintf("giao-dich_%s.csv", now.Format("20060102-150405"))
	}
	start, end := now, now
	if filter.Start != nil {
		start = filter.Start.In(loc)
	}
	if filter.End != nil {
		end = filter.End.In(loc)
	}
	return fmt.Sprintf("giao-dich_%s-%s.csv", start.Format("20060102"), end.Format("20060102"))
}

func record(row domain.DerivedTransactionRow, loc *time.Location) []string {
	ts := ""
	if row.Timestamp != nil {
		ts = row.Timestamp.In(loc).Format(timestampLayout)
	}
	status := row.Status
	if row.PayoutStatus != "" {
		status = status + " / " + row.PayoutStatus
	}
	balance := ""
	if row.BalanceAfter != nil {
		balance = money(*row.BalanceAfter)
	}
	return []string{
		row.TransactionID,
		row.OrderID,
		ts,
		row.Category.Label(),
		row.Description,
		status,
		money(row.Amount),
		money(row.PlatformFee),
		money(row.ShippingFee),
		money(row.PaymentFee),
		money(row.ServiceFee),
		money(row.AdvertisementFee),
		money(row.Discount),
		money(row.Tax),
		money(row.COGS),
		money(row.NetAmount),
		money(row.GrossProfit),
		balance,
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
