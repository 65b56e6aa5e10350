package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const stellarPrecision = 7

// StroopsPerUnit is the number of stroops in one unit of any Stellar asset.
const StroopsPerUnit = 10_000_000

// MaxTrustLimit is the largest representable trust ceiling (full trust).
const MaxTrustLimit = "922337203685.4775807"

var (
	stroopsPerUnit = decimal.NewFromInt(StroopsPerUnit)
	maxAmount      = decimal.New(math.MaxInt64, -stellarPrecision)
)

// SafeParse parses a string into a decimal, returning zero for invalid or empty input.
func SafeParse(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseAmount parses a strictly positive amount that fits the ledger's int64 stroop range.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidIntent)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrInvalidIntent, value)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidIntent)
	}
	if d.GreaterThan(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount %s exceeds the ledger maximum", ErrInvalidIntent, value)
	}
	return d, nil
}

// ToStroops converts a decimal amount to integer stroops, flooring any digits
// past the seventh so the result never exceeds what the user entered.
func ToStroops(value string) (int64, error) {
	d, err := ParseAmount(value)
	if err != nil {
		return 0, err
	}
	stroops := d.Mul(stroopsPerUnit).Floor()
	if stroops.IsZero() {
		return 0, fmt.Errorf("%w: amount %s is below one stroop", ErrInvalidIntent, value)
	}
	return stroops.IntPart(), nil
}

// FromStroops renders integer stroops as a 7-digit amount string without trailing zeros.
func FromStroops(stroops int64) string {
	return formatStellar(decimal.New(stroops, -stellarPrecision))
}

// TruncateAmount floors an amount to 7 fractional digits, the ledger's native precision.
func TruncateAmount(d decimal.Decimal) string {
	return formatStellar(d.Truncate(stellarPrecision))
}

// ApplySlippage returns amount reduced by bps basis points, floored to 7 digits.
// Returns "0" for invalid input.
func ApplySlippage(amount string, bps int) string {
	d := SafeParse(amount)
	if !d.IsPositive() {
		return "0"
	}
	if bps < 0 {
		bps = 0
	}
	factor := decimal.NewFromInt(int64(10_000 - bps)).Div(decimal.NewFromInt(10_000))
	return TruncateAmount(d.Mul(factor))
}

// DivideWithPrecision divides two string values with Stellar precision (7 decimal places),
// stripping trailing zeros. Returns "0" for division by zero or invalid input.
func DivideWithPrecision(a, b string) string {
	da := SafeParse(a)
	db := SafeParse(b)
	if db.IsZero() {
		return "0"
	}
	result := da.Div(db)
	return formatStellar(result.Round(stellarPrecision))
}

// formatStellar renders with 7 decimal places and strips trailing zeros.
func formatStellar(d decimal.Decimal) string {
	s := d.StringFixed(stellarPrecision)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
