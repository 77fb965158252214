package parser

import (
	"fmt"
	"regexp"
	"strings"

	"token-flow/pkg/intent"
	"token-flow/pkg/tokens"
	"token-flow/pkg/types"
)

var swapPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)\s+([A-Z0-9]+)\s+(?:TO|FOR|->)\s+([A-Z0-9]+)$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 SOL to USDC"
//   - "1.5 USDC to PPUSD"
//   - "100 usdt for sol"
func ParseSwapCommand(command string) (*types.SwapIntent, error) {
	// Normalize the command
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 1 SOL to USDC')")
	}

	in := intent.Default()
	in.Amount = matches[1]
	in.From = NormalizeTokenSymbol(matches[2])
	in.To = NormalizeTokenSymbol(matches[3])

	if err := ValidateSwapIntent(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

// ValidateSwapIntent validates that a swap intent has all required fields
// and names two distinct supported tokens
func ValidateSwapIntent(in *types.SwapIntent) error {
	if in.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if in.From == "" {
		return fmt.Errorf("source token is required")
	}
	if in.To == "" {
		return fmt.Errorf("destination token is required")
	}
	if _, err := tokens.MustLookup(in.From); err != nil {
		return err
	}
	if _, err := tokens.MustLookup(in.To); err != nil {
		return err
	}
	if in.From == in.To {
		return fmt.Errorf("source and destination tokens must differ")
	}
	return nil
}

// NormalizeTokenSymbol maps a symbol or alias to its registry key
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToLower(symbol))

	// Handle common aliases
	aliases := map[string]string{
		"wsol":  "sol",
		"pyusd": "ppusd",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
