package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"token-flow/pkg/intent"
	"token-flow/pkg/notify"
	"token-flow/pkg/types"
)

var noConfirm bool

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Perform a token swap",
	Long: `Quote, sign and submit a token swap with the configured wallet.

IMPORTANT:
  - You MUST configure a wallet (TOKEN_FLOW_PRIVATE_KEY or private_key in .token-flow.yaml)
  - The transaction is signed locally and sent to the configured RPC node

Examples:
  token-flow swap 1 SOL to USDC
  token-flow swap 100 USDC to SOL --slippage 1

  # Skip the confirmation prompt
  token-flow swap 1 SOL to USDC --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().Float64Var(&slippagePct, "slippage", 0, "Slippage tolerance in percent (0.1 to 5)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	in, err := parseIntent(args, cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	notes := &notify.Recorder{}
	executor, err := newExecutor(cfg, notes)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !executor.WalletConnected() {
		printError(fmt.Errorf("no wallet configured. Set TOKEN_FLOW_PRIVATE_KEY or add private_key to .token-flow.yaml"))
		os.Exit(1)
	}

	// Preview with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	st, err := estimateOnce(cmd.Context(), cfg, in)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if st.ToAmount == "" {
		printError(fmt.Errorf("enter an amount to swap"))
		os.Exit(1)
	}

	if !jsonOutput {
		displayQuote(in, st)
	}

	// Ask for confirmation
	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = " Signing and submitting swap..."
		s.Start()
	}
	result, err := executor.Execute(cmd.Context(), in)
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		output := map[string]interface{}{
			"intent": in,
			"result": result,
		}
		if err != nil {
			output["error"] = err.Error()
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		console := notify.NewConsole(nil)
		fmt.Println()
		for _, n := range notes.All() {
			console.Notify(n)
		}
	}

	if err != nil {
		os.Exit(1)
	}

	if !jsonOutput {
		fmt.Println("\nYou can check the transaction using:")
		color.Cyan("  token-flow status %s\n", result.Signature)
	}
}

func displayQuote(in types.SwapIntent, st types.EstimationState) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", in.Amount, color.YellowString(strings.ToUpper(in.From)))
	fmt.Printf("  To:                ~%s %s\n", st.ToAmount, color.YellowString(strings.ToUpper(in.To)))
	fmt.Printf("  Slippage:          %.1f%%\n", intent.PctFromBps(in.SlippageBps))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
