package calculator

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// money renders d as dollars with thousands separators, e.g. "$1,580.17".
func money(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	_, cents, _ := strings.Cut(d.StringFixed(2), ".")
	return sign + "$" + humanize.BigComma(d.BigInt()) + "." + cents
}

// num renders f rounded to at most digits decimals, without trailing zeros.
func num(f float64, digits int) string {
	scale := math.Pow(10, float64(digits))
	f = math.Round(f*scale) / scale
	if f == 0 {
		f = 0 // -0
	}
	return humanize.FtoaWithDigits(f, digits)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// checked rejects a derived value that overflowed float64.
func checked(f float64) (float64, error) {
	if !finite(f) {
		return 0, invalid("result is out of range")
	}
	return f, nil
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var hundred = decimal.NewFromInt(100)

// percentOf returns amount * pct / 100.
func percentOf(amount decimal.Decimal, pct float64) decimal.Decimal {
	return amount.Mul(dec(pct)).Div(hundred)
}
