// Package intent holds the selector rules for a swap intent.
package intent

import (
	"fmt"
	"math"
	"strings"

	"token-flow/pkg/swaperr"
	"token-flow/pkg/tokens"
	"token-flow/pkg/types"
)

const (
	MinSlippagePct     = 0.1
	MaxSlippagePct     = 5.0
	DefaultSlippagePct = 0.5
)

// Default is the initial selection: SOL to USDC at 0.5% slippage
func Default() types.SwapIntent {
	return types.SwapIntent{
		From:        "sol",
		To:          "usdc",
		SlippageBps: BpsFromPct(DefaultSlippagePct),
	}
}

// SelectFrom sets the source token. When it collides with the destination,
// the destination moves to the first other registry token.
func SelectFrom(in types.SwapIntent, symbol string) (types.SwapIntent, error) {
	tok, err := resolve(symbol)
	if err != nil {
		return in, err
	}
	in.From = tok
	if in.To == tok {
		in.To = tokens.FirstExcept(tok)
	}
	return in, nil
}

// SelectTo sets the destination token, reassigning the source on collision
func SelectTo(in types.SwapIntent, symbol string) (types.SwapIntent, error) {
	tok, err := resolve(symbol)
	if err != nil {
		return in, err
	}
	in.To = tok
	if in.From == tok {
		in.From = tokens.FirstExcept(tok)
	}
	return in, nil
}

// Flip exchanges the two sides; amount becomes the new source amount
func Flip(in types.SwapIntent, amount string) types.SwapIntent {
	in.From, in.To = in.To, in.From
	in.Amount = amount
	return in
}

// BpsFromPct converts a slippage percentage to basis points
func BpsFromPct(pct float64) int {
	return int(math.Round(pct * 100))
}

// PctFromBps converts basis points back to a percentage
func PctFromBps(bps int) float64 {
	return float64(bps) / 100
}

// ValidateSlippage checks pct lies in [0.1, 5] on a 0.1 step
func ValidateSlippage(pct float64) error {
	if math.IsNaN(pct) || pct < MinSlippagePct-1e-9 || pct > MaxSlippagePct+1e-9 {
		return swaperr.Newf(swaperr.Validation, swaperr.OpSetSlippage, "slippage must be between %.1f%% and %.1f%%", MinSlippagePct, MaxSlippagePct)
	}
	steps := pct * 10
	if math.Abs(steps-math.Round(steps)) > 1e-6 {
		return swaperr.Newf(swaperr.Validation, swaperr.OpSetSlippage, "slippage must be a multiple of 0.1%%")
	}
	return nil
}

func resolve(symbol string) (string, error) {
	tok, ok := tokens.Lookup(symbol)
	if !ok {
		return "", swaperr.New(swaperr.Validation, swaperr.OpResolveToken, fmt.Errorf("token '%s' not found", strings.TrimSpace(symbol)))
	}
	return tok.Symbol, nil
}
