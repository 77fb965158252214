package tokens

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"token-flow/pkg/types"
)

// registry is ordered; the order drives selector reassignment.
var registry = []types.Token{
	{
		Symbol:   "sol",
		Label:    "SOL",
		Decimals: 9,
		Mint:     solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
	},
	{
		Symbol:   "usdc",
		Label:    "USDC",
		Decimals: 6,
		Mint:     solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
	},
	{
		Symbol:   "usdt",
		Label:    "USDT",
		Decimals: 6,
		Mint:     solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"),
	},
	{
		Symbol:   "ppusd",
		Label:    "PayPal USD",
		Decimals: 6,
		Mint:     solana.MustPublicKeyFromBase58("2b1kV6DkPAnxd5ixfnxCpjxmKwqjjaYmCZfHsFu24GXo"),
	},
}

// All returns a copy of the registry in display order
func All() []types.Token {
	out := make([]types.Token, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a token by symbol (case-insensitive)
func Lookup(symbol string) (types.Token, bool) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	for _, t := range registry {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return types.Token{}, false
}

// MustLookup is Lookup that returns an error for unknown symbols
func MustLookup(symbol string) (types.Token, error) {
	t, ok := Lookup(symbol)
	if !ok {
		return types.Token{}, fmt.Errorf("token '%s' not found", symbol)
	}
	return t, nil
}

// FirstExcept returns the first registry symbol that differs from symbol,
// or "" when the registry has nothing else.
func FirstExcept(symbol string) string {
	symbol = strings.ToLower(symbol)
	for _, t := range registry {
		if t.Symbol != symbol {
			return t.Symbol
		}
	}
	return ""
}

// Filter returns tokens whose symbol or label contains query
func Filter(query string) []types.Token {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return All()
	}
	var out []types.Token
	for _, t := range registry {
		if strings.Contains(t.Symbol, query) || strings.Contains(strings.ToLower(t.Label), query) {
			out = append(out, t)
		}
	}
	return out
}
