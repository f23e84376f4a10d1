package utils

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that are not positive decimals
// with at most two fractional digits.
var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a major-unit amount ("1500", "1500.5", "1500.50")
// into minor units.  Zero, negative values and sub-minor precision are
// rejected.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := d.Mul(hundred)
	if !minor.IsInteger() || !minor.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if minor.GreaterThan(decimal.NewFromInt(1 << 53)) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a fixed two-decimal major amount.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// Amount accepts both JSON numbers and JSON strings in request bodies, so
// clients may send {"amount": 1500.50} or {"amount": "1500.50"}.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return ErrInvalidAmount
	}
	*a = Amount(n.String())
	return nil
}

// Minor parses the amount into minor units.
func (a Amount) Minor() (int64, error) { return ParseAmount(string(a)) }

// FeeShare returns floor(amount * bps / 10000).
func FeeShare(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return amount * bps / 10000
}
