package walletbridge

import (
	"github.com/shopspring/decimal"
)

// FormatAmount renders a base-unit token amount for display, shifting by
// the asset's decimals. "10000" with 6 decimals becomes "0.01".
func FormatAmount(baseUnits string, decimals int) string {
	amount, err := decimal.NewFromString(baseUnits)
	if err != nil {
		return "-"
	}
	return amount.Shift(int32(-decimals)).String()
}

// DisplayAmount renders a requirement's maximum amount using its advertised
// token precision.
func DisplayAmount(req PaymentRequirement) string {
	return FormatAmount(req.MaxAmountRequired, req.TokenDecimals())
}
