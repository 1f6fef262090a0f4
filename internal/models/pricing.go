package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DepositRate is the share of a commission price taken up front
var DepositRate = decimal.RequireFromString("0.5")

var styleBasePrices = map[string]decimal.Decimal{
	"realistic":     decimal.NewFromInt(500),
	"portrait":      decimal.NewFromInt(450),
	"impressionist": decimal.NewFromInt(400),
	"watercolor":    decimal.NewFromInt(350),
	"abstract":      decimal.NewFromInt(300),
	"sketch":        decimal.NewFromInt(150),
}

var sizeMultipliers = map[string]decimal.Decimal{
	"small":  decimal.RequireFromString("1.0"),
	"medium": decimal.RequireFromString("1.8"),
	"large":  decimal.RequireFromString("2.5"),
	"xlarge": decimal.RequireFromString("3.5"),
}

// EstimateCommissionPrice returns basePrice(style) x multiplier(size)
func EstimateCommissionPrice(style, size string) (decimal.Decimal, error) {
	base, ok := styleBasePrices[style]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown style %q", style)
	}

	multiplier, ok := sizeMultipliers[size]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown size %q", size)
	}

	return base.Mul(multiplier).Round(2), nil
}

// CommissionStyles lists the accepted styles in a stable order
func CommissionStyles() []string {
	return sortedKeys(styleBasePrices)
}

// CommissionSizes lists the accepted sizes in a stable order
func CommissionSizes() []string {
	return sortedKeys(sizeMultipliers)
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
