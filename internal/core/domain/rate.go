package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a directional conversion rate. Rate(A->B) is stored
// independently of Rate(B->A).
type ExchangeRate struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Convert applies the rate to amount and rounds to MoneyScale.
func (r *ExchangeRate) Convert(amount decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(r.Rate))
}
