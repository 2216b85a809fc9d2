package domain

import (
	"github.com/shopspring/decimal"
)

// Supported currency codes.
const (
	CurrencyUSD = "USD"
	CurrencyTHB = "THB"
	CurrencyEUR = "EUR"
	CurrencyLAK = "LAK"
)

// SupportedCurrencies lists every currency a wallet may hold.
var SupportedCurrencies = []string{CurrencyUSD, CurrencyTHB, CurrencyEUR, CurrencyLAK}

// MoneyScale is the number of fractional digits stored for any amount (NUMERIC(20,8)).
const MoneyScale int32 = 8

// ChargeScale is the number of fractional digits a card charge can carry
// (processor minor units).
const ChargeScale int32 = 2

var (
	// ExchangeFeeRate is the fixed fee charged on the source amount of an exchange.
	ExchangeFeeRate = decimal.RequireFromString("0.005")

	// MinTopUpAmount is the smallest charge the card processor accepts.
	MinTopUpAmount = decimal.RequireFromString("0.50")
)

// IsSupportedCurrency reports whether code is one of SupportedCurrencies.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// RoundMoney rounds d to MoneyScale fractional digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// FitsScale reports whether d has no significant digits beyond scale
// fractional places. Trailing zeros are ignored.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// IsStorableAmount reports whether d is a positive amount that MoneyScale can
// hold exactly.
func IsStorableAmount(d decimal.Decimal) bool {
	return d.IsPositive() && FitsScale(d, MoneyScale)
}

// ExchangeFee returns the fee owed on an exchange of amount.
func ExchangeFee(amount decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(ExchangeFeeRate))
}
