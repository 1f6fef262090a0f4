package models

import "github.com/shopspring/decimal"

func init() {
	// prices are sent to clients as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// ToMinorUnits converts an amount to the integer cents the gateway expects
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts gateway cents back into an amount
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
