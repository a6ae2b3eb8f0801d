package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies a transaction row.
type Category string

const (
	CategorySale     Category = "sale"
	CategoryRefund   Category = "refund"
	CategoryFee      Category = "fee"
	CategoryWithdraw Category = "withdraw"
	CategoryOther    Category = "other"
)

// DefaultDescription is used when a payment carries no description.
const DefaultDescription = "Thanh toán đơn hàng"

// Categories lists every category in display order.
var Categories = []Category{CategorySale, CategoryRefund, CategoryFee, CategoryWithdraw, CategoryOther}

// ParseCategory maps a category token to its constant.
func ParseCategory(s string) (Category, bool) {
	c := Category(NormalizeStatus(s))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Label returns the Vietnamese label used in exports.
func (c Category) Label() string {
	switch c {
	case CategorySale:
		return "Bán hàng"
	case CategoryRefund:
		return "Hoàn tiền"
	case CategoryFee:
		return "Phí"
	case CategoryWithdraw:
		return "Rút tiền"
	default:
		return "Khác"
	}
}

// DerivedTransactionRow is a fully costed transaction. Rows are values and
// are never mutated after derivation.
type DerivedTransactionRow struct {
	Key              string     `json:"key"`
	TransactionID    string     `json:"transactionId,omitempty"`
	OrderID          string     `json:"orderId,omitempty"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
	Description      string     `json:"description"`
	Category         Category   `json:"category"`
	Status           string     `json:"status"`
	PayoutStatus     string     `json:"payoutStatus,omitempty"`
	Amount           float64    `json:"amount"`
	PlatformFee      float64    `json:"platformFee"`
	ShippingFee      float64    `json:"shippingFee"`
	PaymentFee       float64    `json:"paymentFee"`
	ServiceFee       float64    `json:"serviceFee"`
	AdvertisementFee float64    `json:"advertisementFee"`
	Discount         float64    `json:"discount"`
	Tax              float64    `json:"tax"`
	COGS             float64    `json:"cogs"`
	NetAmount        float64    `json:"netAmount"`
	GrossProfit      float64    `json:"grossProfit"`
	BalanceAfter     *float64   `json:"balanceAfter,omitempty"`
}

// TotalFees is the sum of the fee fields and tax, excluding discount.
func (r DerivedTransactionRow) TotalFees() float64 {
	return decimal.Sum(
		fromFloat(r.PlatformFee),
		fromFloat(r.ShippingFee),
		fromFloat(r.PaymentFee),
		fromFloat(r.ServiceFee),
		fromFloat(r.AdvertisementFee),
		fromFloat(r.Tax),
	).InexactFloat64()
}

// Alias chains for payment fields.
var (
	orderObjectAliases   = []string{"order", "order_info"}
	orderIDAliases       = []string{"order.id", "order._id", "order.order_id", "order_info.id", "order_info._id", "order_info.order_id", "order_id", "orderId"}
	transactionIDAliases = []string{"transaction_id", "transactionId", "txn_id", "id", "_id"}
	timestampAliases     = []string{"created_at", "createdAt", "paid_at", "paidAt", "date"}
	amountAliases        = []string{"amount", "total_amount", "totalAmount", "order.total_amount", "order.total", "order_info.total_amount", "order_info.total"}
	feeBreakdownAliases  = []string{"fees", "fee_breakdown", "feeBreakdown"}
	typeHintAliases      = []string{"type", "transaction_type", "transactionType"}
	descriptionAliases   = []string{"description", "note"}
	payoutStatusAliases  = []string{"payout_status", "payoutStatus", "settlement_status", "settlementStatus"}
	balanceAfterAliases  = []string{"balance_after", "balanceAfter"}
	cogsAliases          = []string{"cogs", "cost_of_goods", "costOfGoods"}

	platformFeeAliases      = []string{"platform_fee", "platformFee"}
	shippingFeeAliases      = []string{"shipping_fee", "shippingFee"}
	paymentFeeAliases       = []string{"payment_fee", "paymentFee", "payment_processor_fee"}
	serviceFeeAliases       = []string{"service_fee", "serviceFee"}
	advertisementFeeAliases = []string{"advertisement_fee", "advertisementFee", "ads_fee", "adsFee"}
	discountAliases         = []string{"discount", "discount_amount", "discountAmount"}
	taxAliases              = []string{"tax", "vat", "tax_amount"}
)

// feeSet holds the fee breakdown of one payment.
type feeSet struct {
	platform      decimal.Decimal
	shipping      decimal.Decimal
	payment       decimal.Decimal
	service       decimal.Decimal
	advertisement decimal.Decimal
	discount      decimal.Decimal
	tax           decimal.Decimal
}

// total is the fee sum excluding discount.
func (f feeSet) total() decimal.Decimal {
	return decimal.Sum(f.platform, f.shipping, f.payment, f.service, f.advertisement, f.tax)
}

// readFees looks every fee up in the nested breakdown first and on the
// payment itself second.
func readFees(raw RawPayment) feeSet {
	breakdown := raw.Object(feeBreakdownAliases...)
	read := func(aliases []string) decimal.Decimal {
		return toDecimal(FirstDefined(breakdown.First(aliases...), raw.First(aliases...)))
	}
	return feeSet{
		platform:      read(platformFeeAliases),
		shipping:      read(shippingFeeAliases),
		payment:       read(paymentFeeAliases),
		service:       read(serviceFeeAliases),
		advertisement: read(advertisementFeeAliases),
		discount:      read(discountAliases),
		tax:           read(taxAliases),
	}
}

// orderID handles both a nested order object and a bare id in "order".
func orderID(raw RawPayment) string {
	if id := raw.String(orderIDAliases...); id != "" {
		return id
	}
	if _, nested := asObject(raw.Get("order")); !nested {
		return raw.String("order")
	}
	return ""
}

// DeriveTransactionRow maps one raw payment into a costed row. Timestamps
// without an offset are read in loc. Malformed input degrades to zero or
// fallback values.
func DeriveTransactionRow(raw RawPayment, loc *time.Location) DerivedTransactionRow {
	fees := readFees(raw)
	amount := toDecimal(raw.First(amountAliases...))
	cogs := toDecimal(raw.First(cogsAliases...))

	net := amount.Sub(fees.total()).Sub(fees.discount)
	gross := net.Sub(cogs)

	row := DerivedTransactionRow{
		TransactionID:    raw.String(transactionIDAliases...),
		OrderID:          orderID(raw),
		Description:      raw.String(descriptionAliases...),
		Status:           raw.String("status"),
		PayoutStatus:     raw.String(payoutStatusAliases...),
		Amount:           amount.InexactFloat64(),
		PlatformFee:      fees.platform.InexactFloat64(),
		ShippingFee:      fees.shipping.InexactFloat64(),
		PaymentFee:       fees.payment.InexactFloat64(),
		ServiceFee:       fees.service.InexactFloat64(),
		AdvertisementFee: fees.advertisement.InexactFloat64(),
		Discount:         fees.discount.InexactFloat64(),
		Tax:              fees.tax.InexactFloat64(),
		COGS:             cogs.InexactFloat64(),
		NetAmount:        net.InexactFloat64(),
		GrossProfit:      gross.InexactFloat64(),
	}
	if row.Description == "" {
		row.Description = DefaultDescription
	}
	if ts, ok := ParseTimestamp(raw.First(timestampAliases...), loc); ok {
		row.Timestamp = &ts
	}
	if v := raw.First(balanceAfterAliases...); v != nil {
		balance := ToSafeNumber(v)
		row.BalanceAfter = &balance
	}
	row.Category = ResolveCategory(raw.String(typeHintAliases...), row.Status)
	row.Key = rowKey(row)
	return row
}

// DeriveTransactionRows derives every payment, keeping input order. Rows
// without any identity get an index-based key.
func DeriveTransactionRows(raws []RawPayment, loc *time.Location) []DerivedTransactionRow {
	rows := make([]DerivedTransactionRow, 0, len(raws))
	for i, raw := range raws {
		row := DeriveTransactionRow(raw, loc)
		if row.Key == "" {
			row.Key = fmt.Sprintf("row-%d", i)
		}
		rows = append(rows, row)
	}
	return rows
}

func rowKey(row DerivedTransactionRow) string {
	switch {
	case row.TransactionID != "":
		return row.TransactionID
	case row.OrderID != "":
		return row.OrderID
	case row.Timestamp != nil:
		return row.Timestamp.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

var typeHintGroups = []struct {
	category Category
	keywords []string
}{
	{CategoryRefund, []string{"refund", "hoàn"}},
	{CategoryFee, []string{"fee", "phí"}},
	{CategoryWithdraw, []string{"withdraw", "rút"}},
	{CategorySale, []string{"sale", "payment"}},
}

// ResolveCategory matches the type hint against keyword groups and falls
// back to status inference when the hint is absent or unrecognized. As in
// IsRefund, "hoàn tất" is dropped from the hint before matching.
func ResolveCategory(typeHint, status string) Category {
	hint := strings.TrimSpace(strings.ReplaceAll(NormalizeStatus(typeHint), "hoàn tất", ""))
	if hint != "" {
		for _, group := range typeHintGroups {
			if containsAny(hint, group.keywords) {
				return group.category
			}
		}
	}
	switch {
	case IsRefund(status):
		return CategoryRefund
	case IsPending(status), IsSuccess(status):
		return CategorySale
	default:
		return CategoryOther
	}
}

// String keeps Category readable in logs.
func (c Category) String() string {
	return string(c)
}

// Contains reports whether the row matches the search term in its order
// id, transaction id or description.
func (r DerivedTransactionRow) Contains(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{r.OrderID, r.TransactionID, r.Description} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
