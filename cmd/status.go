package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"token-flow/pkg/ledger"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <signature>",
	Short: "Check the status of a swap transaction",
	Long: `Look up a submitted swap transaction by its signature.

Examples:
  token-flow status 5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW
  token-flow status <signature> --watch
  token-flow status <signature> --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transaction lands")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	signature := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	rpcClient := newLedger(cfg)

	if watchStatus {
		watchTxStatus(cmd.Context(), rpcClient, signature, jsonOutput)
	} else {
		checkTxStatus(cmd.Context(), rpcClient, signature, jsonOutput)
	}
}

func checkTxStatus(ctx context.Context, rpcClient *ledger.RPCClient, signature string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}

	info, err := rpcClient.GetTransactionInfo(ctx, signature)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(info)
	}
}

func watchTxStatus(ctx context.Context, rpcClient *ledger.RPCClient, signature string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(signature))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(ctx, rpcClient, signature) {
		return
	}

	// Then check periodically
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if checkAndDisplayStatus(ctx, rpcClient, signature) {
				return
			}
		}
	}
}

// checkAndDisplayStatus reports whether the transaction has landed
func checkAndDisplayStatus(ctx context.Context, rpcClient *ledger.RPCClient, signature string) bool {
	info, err := rpcClient.GetTransactionInfo(ctx, signature)
	if errors.Is(err, rpc.ErrNotFound) {
		fmt.Printf("  %s %s\n", time.Now().Format("15:04:05"), getColoredStatus("PENDING"))
		return false
	}
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(info)
	return true
}

func displayStatus(info *ledger.TransactionInfo) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	status := "SUCCESS"
	if info.Err != nil {
		status = "FAILED"
	}

	fmt.Printf("\n  Signature:       %s\n", color.CyanString(info.Signature))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status))
	fmt.Printf("  Slot:            %d\n", info.Slot)
	fmt.Printf("  Fee:             %d lamports\n", info.Fee)
	if info.BlockTime != nil {
		fmt.Printf("  Block Time:      %s\n", time.Unix(*info.BlockTime, 0).Format("2006-01-02 15:04:05"))
	}
	if info.Err != nil {
		fmt.Printf("  Error:           %s\n", color.RedString("%v", info.Err))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS":
		return color.GreenString(status)
	case "PENDING":
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	default:
		return status
	}
}
