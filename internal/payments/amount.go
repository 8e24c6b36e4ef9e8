package payments

import (
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

// Currencies Stripe charges in whole units.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

func currencyExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount (12.34 USD) into the integer
// minor units Stripe expects (1234), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	minor := amount.Shift(currencyExponent(currency)).Round(0)
	if !minor.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount is below the smallest currency unit")
	}
	if minor.GreaterThan(decimal.NewFromInt(maxMinorAmount)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount is too large")
	}
	return minor.IntPart(), nil
}

// FromMinorUnits renders minor units back into a major-unit decimal.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -currencyExponent(currency))
}

// Stripe caps amounts at eight digits of minor units.
const maxMinorAmount = 99999999
