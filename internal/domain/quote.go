package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatePrecision is the number of fractional digits kept for forex rates.
const RatePrecision = 4

// MaxCurrencyNameLen is the longest stored currency name, in characters.
const MaxCurrencyNameLen = 100

// IsCurrencyCode reports whether code is exactly three upper-case ASCII letters.
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// Quote is one currency's published rate for one calendar date.
// Date carries no meaningful time of day, it is always midnight UTC.
type Quote struct {
	CurrencyCode string          `json:"currency_code"`
	CurrencyName string          `json:"currency_name"`
	ForexBuying  decimal.Decimal `json:"forex_buying"`
	ForexSelling decimal.Decimal `json:"forex_selling"`
	Date         time.Time       `json:"date"`
}

// FilterByCurrency returns quotes matching code, keeping the input order.
func FilterByCurrency(quotes []Quote, code string) []Quote {
	res := make([]Quote, 0, 1)
	for _, q := range quotes {
		if q.CurrencyCode == code {
			res = append(res, q)
		}
	}
	return res
}

// FilterByDate returns quotes dated exactly on date.
func FilterByDate(quotes []Quote, date time.Time) []Quote {
	res := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Date.Equal(date) {
			res = append(res, q)
		}
	}
	return res
}
