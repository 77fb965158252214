package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"token-flow/pkg/logging"
	"token-flow/pkg/notify"
	"token-flow/pkg/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the swap widget over a websocket",
	Long: `Start an HTTP server for browser widgets. Each websocket connection on /ws
gets its own live estimate; swaps are signed with the configured wallet.

Routes:
  /ws      widget protocol
  /tokens  supported tokens as JSON
  /health  liveness probe

Examples:
  token-flow serve
  token-flow serve --addr 127.0.0.1:9000`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (defaults to listen_addr from config)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr
	}

	executor, err := newExecutor(cfg, notify.Nop{})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !executor.WalletConnected() {
		logging.Log.Warn("No wallet configured, swaps will be rejected")
	}

	srv := server.New(server.Options{
		Quoter:   newQuoteClient(cfg),
		Executor: executor,
		Debounce: cfg.Debounce(),
		Log:      logging.Component("server"),
	})

	if err := srv.ListenAndServe(cmd.Context(), listenAddr); err != nil {
		printError(err)
		os.Exit(1)
	}
}
