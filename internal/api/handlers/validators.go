package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/market-console/finance-portal/internal/domain"
	"github.com/market-console/finance-portal/pkg/middleware"
)

// Validations returns the finance request tags for middleware.Setup
func Validations() []middleware.CustomValidation {
	ranges := make([]string, 0, len(domain.QuickRanges))
	for _, q := range domain.QuickRanges {
		ranges = append(ranges, string(q))
	}
	types := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		types = append(types, string(c))
	}

	return []middleware.CustomValidation{
		{Tag: "quick_range", Fn: validateQuickRange, Message: "must be one of: " + strings.Join(ranges, " ")},
		{Tag: "finance_type", Fn: validateFinanceType, Message: "must be one of: " + strings.Join(types, " ")},
	}
}

func validateQuickRange(fl validator.FieldLevel) bool {
	return domain.QuickRange(fl.Field().String()).Valid()
}

func validateFinanceType(fl validator.FieldLevel) bool {
	_, ok := domain.ParseCategory(fl.Field().String())
	return ok
}
