package money

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// zeroDecimal lists ISO-4217 currencies whose minor unit is the major unit.
var zeroDecimal = map[enums.Currency]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {},
	"XOF": {}, "XPF": {},
}

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency enums.Currency) int32 {
	if _, ok := zeroDecimal[currency]; ok {
		return 0
	}
	return 2
}

// ToMajor converts a minor-unit amount into its major-unit decimal.
func ToMajor(amount int64, currency enums.Currency) decimal.Decimal {
	return decimal.New(amount, -Exponent(currency))
}

// FormatMajor renders amount as a fixed-point major-unit string, e.g. 5000 USD -> "50.00".
func FormatMajor(amount int64, currency enums.Currency) string {
	exp := Exponent(currency)
	return ToMajor(amount, currency).StringFixed(exp)
}

// Amount is the JSON shape used by read endpoints for money values.
type Amount struct {
	Minor    int64          `json:"minor"`
	Major    string         `json:"major"`
	Currency enums.Currency `json:"currency"`
}

func NewAmount(minor int64, currency enums.Currency) Amount {
	return Amount{Minor: minor, Major: FormatMajor(minor, currency), Currency: currency}
}
