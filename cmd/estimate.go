package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"token-flow/config"
	"token-flow/pkg/estimate"
	"token-flow/pkg/intent"
	"token-flow/pkg/logging"
	"token-flow/pkg/parser"
	"token-flow/pkg/types"
)

var slippagePct float64

var estimateCmd = &cobra.Command{
	Use:   "estimate <amount> <source-token> to <dest-token>",
	Short: "Estimate the output of a swap",
	Long: `Fetch a quote and show how much of the destination token you would receive.

Examples:
  token-flow estimate 1 SOL to USDC
  token-flow estimate 250 USDC to PPUSD --slippage 1`,
	Args: cobra.MinimumNArgs(1),
	Run:  runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().Float64Var(&slippagePct, "slippage", 0, "Slippage tolerance in percent (0.1 to 5)")
}

func runEstimate(cmd *cobra.Command, args []string) {
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

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching exchange rate..."
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

	if jsonOutput {
		output := map[string]interface{}{
			"intent":   in,
			"estimate": st,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayEstimate(in, st)
}

// parseIntent parses a swap command and applies the slippage flag or the
// configured default
func parseIntent(args []string, cfg *config.Config) (types.SwapIntent, error) {
	parsed, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return types.SwapIntent{}, err
	}

	pct := cfg.Slippage
	if slippagePct != 0 {
		pct = slippagePct
	}
	if err := intent.ValidateSlippage(pct); err != nil {
		return types.SwapIntent{}, err
	}
	parsed.SlippageBps = intent.BpsFromPct(pct)
	return *parsed, nil
}

// estimateOnce runs an estimator until the amount in `in` has been quoted
func estimateOnce(ctx context.Context, cfg *config.Config, in types.SwapIntent) (types.EstimationState, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Debounce()+cfg.RequestTimeout+5*time.Second)
	defer cancel()

	done := make(chan types.EstimationState, 1)
	est := estimate.New(estimate.Options{
		Quoter:   newQuoteClient(cfg),
		Debounce: cfg.Debounce(),
		Log:      logging.Component("estimate"),
		Initial:  &in,
		OnChange: func(st types.EstimationState, _ types.SwapIntent) {
			if st.Phase != types.PhaseSettled && st.Phase != types.PhaseFailed {
				return
			}
			select {
			case done <- st:
			default:
			}
		},
	})
	go func() {
		_ = est.Run(ctx)
	}()

	if err := est.SetAmount(in.Amount); err != nil {
		return types.EstimationState{}, err
	}

	select {
	case st := <-done:
		if st.Phase == types.PhaseFailed {
			return st, fmt.Errorf("could not fetch exchange rate: %s", st.Err)
		}
		return st, nil
	case <-ctx.Done():
		return types.EstimationState{}, fmt.Errorf("timed out waiting for a quote: %w", ctx.Err())
	}
}

func displayEstimate(in types.SwapIntent, st types.EstimationState) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    SWAP ESTIMATE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", in.Amount, color.YellowString(strings.ToUpper(in.From)))
	if st.ToAmount == "" {
		fmt.Printf("  To:                %s\n", color.HiBlackString("nothing to estimate"))
	} else {
		fmt.Printf("  To:                ~%s %s\n", st.ToAmount, color.YellowString(strings.ToUpper(in.To)))
	}
	fmt.Printf("  Slippage:          %.1f%%\n", intent.PctFromBps(in.SlippageBps))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
