package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"token-flow/pkg/tokens"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List the tokens that can be swapped.

You can filter tokens by symbol or label.

Examples:
  token-flow list-tokens
  token-flow list-tokens --symbol usd`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol or label")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	list := tokens.Filter(filterSymbol)

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(list) == 0 {
		color.Yellow("\nNo tokens match '%s'\n", filterSymbol)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                                  SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))
	fmt.Printf("\n  %-8s %-14s %-10s %s\n", "SYMBOL", "NAME", "DECIMALS", "MINT")
	fmt.Println("  " + strings.Repeat("-", 86))

	for _, t := range list {
		fmt.Printf("  %s %-14s %-10d %s\n",
			color.YellowString("%-8s", strings.ToUpper(t.Symbol)),
			t.Label,
			t.Decimals,
			color.HiBlackString(t.Mint.String()))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(list))
}
