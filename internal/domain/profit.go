package domain

import "github.com/shopspring/decimal"

// ProfitSummary aggregates payments that carry order data. COGS comes from
// the order's line items, not from the payment's flat cogs field.
type ProfitSummary struct {
	TotalRevenue     float64 `json:"totalRevenue"`
	TotalFees        float64 `json:"totalFees"`
	TotalCOGS        float64 `json:"totalCogs"`
	TotalGrossProfit float64 `json:"totalGrossProfit"`
	OrderCount       int     `json:"orderCount"`
}

var (
	lineItemAliases = []string{"items", "order_items", "products"}
	quantityAliases = []string{"quantity", "qty"}
	unitCostAliases = []string{"cost_price", "costPrice", "cogs", "import_price", "product.cost_price"}
)

// AggregateProfit sums revenue, fees (with discount folded in), line-item
// COGS and gross profit over every payment with a nested order object.
func AggregateProfit(payments []RawPayment) ProfitSummary {
	var revenue, fees, cogs decimal.Decimal
	count := 0

	for _, payment := range payments {
		order := payment.Object(orderObjectAliases...)
		if order == nil {
			continue
		}
		count++

		paymentFees := readFees(payment)
		revenue = revenue.Add(toDecimal(payment.First(amountAliases...)))
		fees = fees.Add(paymentFees.total()).Add(paymentFees.discount)
		cogs = cogs.Add(lineItemCOGS(order))
	}

	return ProfitSummary{
		TotalRevenue:     revenue.InexactFloat64(),
		TotalFees:        fees.InexactFloat64(),
		TotalCOGS:        cogs.InexactFloat64(),
		TotalGrossProfit: revenue.Sub(fees).Sub(cogs).InexactFloat64(),
		OrderCount:       count,
	}
}

func lineItemCOGS(order Record) decimal.Decimal {
	total := decimal.Zero
	for _, item := range order.List(lineItemAliases...) {
		qty := toDecimal(item.First(quantityAliases...))
		unit := toDecimal(item.First(unitCostAliases...))
		total = total.Add(qty.Mul(unit))
	}
	return total
}
