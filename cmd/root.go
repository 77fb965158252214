package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"token-flow/config"
	"token-flow/pkg/client"
	"token-flow/pkg/ledger"
	"token-flow/pkg/logging"
	"token-flow/pkg/notify"
	"token-flow/pkg/swap"
	"token-flow/pkg/wallet"
)

var rootCmd = &cobra.Command{
	Use:   "token-flow",
	Short: "A CLI for estimating and executing Solana token swaps",
	Long: `token-flow quotes Solana token swaps as you type, then signs and submits the
swap transaction with your wallet once you confirm.

Examples:
  token-flow estimate 1 SOL to USDC
  token-flow swap 1.5 SOL to USDC
  token-flow watch
  token-flow list-tokens
  token-flow status <signature>
  token-flow serve --addr :8080`,
	Version: "0.1.0",
}

// Execute runs the root command until ctx is cancelled
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// loadConfig reads configuration and applies the logging settings
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logging.SetLogLevel("debug")
	}
	return cfg, nil
}

func newQuoteClient(cfg *config.Config) *client.JupiterClient {
	return client.NewJupiterClient(cfg.QuoteURL,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logging.Component("quote")),
	)
}

func newLedger(cfg *config.Config) *ledger.RPCClient {
	return ledger.NewRPCClient(cfg.RPCURL,
		ledger.WithCommitment(ledger.ParseCommitment(cfg.Commitment)),
		ledger.WithLogger(logging.Component("ledger")),
	)
}

func newExecutor(cfg *config.Config, notifier notify.Notifier) (*swap.Executor, error) {
	w, err := wallet.FromPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	quotes := newQuoteClient(cfg)
	return swap.New(swap.Options{
		Quoter:   quotes,
		Builder:  quotes,
		Wallet:   w,
		Ledger:   newLedger(cfg),
		Notifier: notifier,
		Log:      logging.Component("swap"),
		Send: ledger.SendOptions{
			SkipPreflight: cfg.SkipPreflight,
			MaxRetries:    cfg.MaxRetries,
		},
		ExplorerURL: cfg.ExplorerURL,
	}), nil
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
