package cmd

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"token-flow/pkg/amount"
	"token-flow/pkg/tokens"
	"token-flow/pkg/wallet"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the configured wallet and its SOL balance",
	Run:   runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	w, err := wallet.FromPrivateKey(cfg.PrivateKey)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !w.Connected() {
		printError(wallet.ErrNotConnected)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching balance..."
		s.Start()
	}
	lamports, err := newLedger(cfg).GetBalance(cmd.Context(), w.PublicKey())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sol, _ := tokens.Lookup("sol")
	display := amount.ToDisplayInt(new(big.Int).SetUint64(lamports), sol.Decimals)

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]interface{}{
			"address":  w.PublicKey().String(),
			"lamports": lamports,
			"sol":      display,
		}, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Printf("\n  Address: %s\n", color.CyanString(w.PublicKey().String()))
	fmt.Printf("  Balance: %s %s\n\n", display, color.YellowString("SOL"))
}
