package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"token-flow/pkg/estimate"
	"token-flow/pkg/intent"
	"token-flow/pkg/logging"
	"token-flow/pkg/notify"
	"token-flow/pkg/swap"
	"token-flow/pkg/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive swap form with a live estimate",
	Long: `Edit a swap from the terminal. The estimate refreshes shortly after you stop
changing the amount, and immediately when tokens change.

Commands:
  amount <value>     set the amount to sell
  from <token>       set the token to sell
  to <token>         set the token to buy
  slippage <pct>     set slippage tolerance (0.1 to 5)
  flip               swap the two sides
  swap               sign and submit the swap
  quit               exit`,
	Run: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	console := notify.NewConsole(nil)
	executor, err := newExecutor(cfg, console)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	initial := intent.Default()
	initial.SlippageBps = intent.BpsFromPct(cfg.Slippage)

	est := estimate.New(estimate.Options{
		Quoter:   newQuoteClient(cfg),
		Debounce: cfg.Debounce(),
		Notifier: console,
		Log:      logging.Component("estimate"),
		Initial:  &initial,
		OnChange: func(st types.EstimationState, in types.SwapIntent) {
			if st.Phase == types.PhaseSettled || st.Phase == types.PhaseEstimating {
				printForm(st, in)
			}
		},
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		_ = est.Run(ctx)
	}()

	printForm(est.State(), est.Intent())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		if err := handleWatchCommand(ctx, est, executor, fields); err != nil {
			color.Red("%v", err)
		}
	}
}

func handleWatchCommand(ctx context.Context, est *estimate.Orchestrator, executor *swap.Executor, fields []string) error {
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "amount":
		return est.SetAmount(arg)
	case "from":
		return est.SetFromToken(arg)
	case "to":
		return est.SetToToken(arg)
	case "slippage":
		pct, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("invalid slippage: %s", arg)
		}
		if err := est.SetSlippage(pct); err != nil {
			return err
		}
		printForm(est.State(), est.Intent())
		return nil
	case "flip":
		return est.Flip()
	case "swap":
		st, in := est.State(), est.Intent()
		if !estimate.CanSwap(st, in, executor.WalletConnected(), executor.Busy()) {
			return fmt.Errorf("connect a wallet and wait for an estimate before swapping")
		}
		if _, err := executor.Execute(ctx, in); err != nil {
			// already reported on the console
			return nil
		}
		return est.Reset()
	default:
		return fmt.Errorf("unknown command: %s", fields[0])
	}
}

func printForm(st types.EstimationState, in types.SwapIntent) {
	to := st.ToAmount
	switch {
	case st.IsLoading:
		to = color.HiBlackString("estimating...")
	case to == "":
		to = color.HiBlackString("-")
	}
	amt := in.Amount
	if amt == "" {
		amt = "0"
	}
	fmt.Printf("\n  %s %s -> %s %s  (slippage %.1f%%)\n",
		amt, color.YellowString(strings.ToUpper(in.From)),
		to, color.YellowString(strings.ToUpper(in.To)),
		intent.PctFromBps(in.SlippageBps))
}
