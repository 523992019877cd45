package reporting

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Cents rounds v half-even to two decimals.
func Cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).RoundBank(2)
}

// USD formats v as grouped dollars and cents, e.g. "-$1,234.50".
func USD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	c := Cents(v)
	sign := ""
	if c.IsNegative() {
		sign = "-"
		c = c.Abs()
	}
	return sign + "$" + printer.Sprintf("%.2f", c.InexactFloat64())
}

// Percent formats a fraction as a percentage with one decimal.
func Percent(f float64) string {
	return printer.Sprintf("%.1f%%", f*100)
}

// Count formats an integer with thousands separators.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}

// Ratio formats profit factor and Sharpe style values.
func Ratio(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "n/a"
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// csvFloat renders a value for machine-readable output.
func csvFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// csvUSD renders a cents-rounded amount without grouping.
func csvUSD(f float64) string {
	return Cents(f).StringFixedBank(2)
}
