// Package amount converts between human decimal strings and integer base units.
package amount

import (
	"errors"
	"math/big"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"token-flow/pkg/swaperr"
)

// ErrInvalidAmount is returned for empty or non-numeric input
var ErrInvalidAmount = errors.New("invalid amount")

var (
	displayPattern = regexp.MustCompile(`^[0-9]*\.?[0-9]*$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
	stripPattern   = regexp.MustCompile(`[^0-9.]`)
)

// ToBaseUnits converts a display amount like "1.5" into base units for a
// token with the given decimals. Digits past the token precision are truncated.
func ToBaseUnits(display string, decimals uint8) (*big.Int, error) {
	display = strings.TrimSpace(display)
	if !IsValid(display) {
		return nil, swaperr.New(swaperr.Validation, swaperr.OpEncodeAmount, ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(display)
	if err != nil {
		return nil, swaperr.New(swaperr.Validation, swaperr.OpEncodeAmount, ErrInvalidAmount)
	}

	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// IsValid reports whether display is a plain unsigned decimal with at least one digit
func IsValid(display string) bool {
	display = strings.TrimSpace(display)
	if !displayPattern.MatchString(display) {
		return false
	}
	return strings.ContainsAny(display, "0123456789")
}

// ToDisplay renders a base-unit integer string as a grouped decimal with
// exactly decimals fractional digits. Anything that is not a digit string,
// and zero itself, renders as "0".
func ToDisplay(baseUnits string, decimals uint8) string {
	if !digitsPattern.MatchString(baseUnits) {
		return "0"
	}

	digits := strings.TrimLeft(baseUnits, "0")
	if digits == "" {
		return "0"
	}

	dec := int(decimals)
	if dec == 0 {
		return group(digits)
	}

	if len(digits) <= dec {
		return "0." + strings.Repeat("0", dec-len(digits)) + digits
	}

	split := len(digits) - dec
	return group(digits[:split]) + "." + digits[split:]
}

// ToDisplayInt is ToDisplay for a big integer. Negative or nil values render as "0".
func ToDisplayInt(v *big.Int, decimals uint8) string {
	if v == nil || v.Sign() <= 0 {
		return "0"
	}
	return ToDisplay(v.String(), decimals)
}

// Sanitize keeps only digits and dots
func Sanitize(raw string) string {
	return stripPattern.ReplaceAllString(raw, "")
}

// Normalize removes grouping separators so a displayed value can be used as input again
func Normalize(display string) string {
	return strings.ReplaceAll(strings.TrimSpace(display), ",", "")
}

func group(digits string) string {
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return "0"
	}
	return humanize.BigComma(n)
}
