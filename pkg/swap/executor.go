// Package swap performs a user-confirmed token swap end to end.
package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"token-flow/pkg/amount"
	"token-flow/pkg/client"
	"token-flow/pkg/ledger"
	"token-flow/pkg/notify"
	"token-flow/pkg/swaperr"
	"token-flow/pkg/tokens"
	"token-flow/pkg/types"
	"token-flow/pkg/wallet"
)

// DefaultExplorerURL prefixes a transaction signature to form a link
const DefaultExplorerURL = "https://solscan.io/tx/"

var (
	// ErrSwapInProgress is returned when a swap is requested while another runs
	ErrSwapInProgress = errors.New("a swap is already in progress")
	// ErrEmptyAmount is returned when there is nothing to swap
	ErrEmptyAmount = errors.New("enter an amount to swap")
)

// Options configures an Executor
type Options struct {
	Quoter      client.Quoter
	Builder     client.SwapBuilder
	Wallet      wallet.Wallet
	Ledger      ledger.Client
	Notifier    notify.Notifier
	Log         *logrus.Entry
	Send        ledger.SendOptions
	ExplorerURL string

	// OnStart is called once the swap holds the in-flight flag
	OnStart func()
}

// DefaultSendOptions skips preflight and lets the node retry twice
func DefaultSendOptions() ledger.SendOptions {
	return ledger.SendOptions{SkipPreflight: true, MaxRetries: 2}
}

// Executor runs at most one swap at a time
type Executor struct {
	quoter      client.Quoter
	builder     client.SwapBuilder
	wallet      wallet.Wallet
	ledger      ledger.Client
	notifier    notify.Notifier
	log         *logrus.Entry
	send        ledger.SendOptions
	explorerURL string
	onStart     func()

	inFlight *atomic.Bool
}

// New creates an executor
func New(opts Options) *Executor {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Wallet == nil {
		opts.Wallet = wallet.Disconnected{}
	}
	if opts.ExplorerURL == "" {
		opts.ExplorerURL = DefaultExplorerURL
	}

	return &Executor{
		quoter:      opts.Quoter,
		builder:     opts.Builder,
		wallet:      opts.Wallet,
		ledger:      opts.Ledger,
		notifier:    opts.Notifier,
		log:         opts.Log,
		send:        opts.Send,
		explorerURL: opts.ExplorerURL,
		onStart:     opts.OnStart,
		inFlight:    &atomic.Bool{},
	}
}

// WithNotifier returns an executor that also notifies n. It shares the
// in-flight flag with e, so the one-swap-at-a-time rule still holds.
func (e *Executor) WithNotifier(n notify.Notifier) *Executor {
	cp := *e
	cp.notifier = notify.Multi{e.notifier, n}
	return &cp
}

// WithOnStart returns an executor that calls fn when a swap starts, sharing
// the in-flight flag with e
func (e *Executor) WithOnStart(fn func()) *Executor {
	cp := *e
	cp.onStart = fn
	return &cp
}

// Busy reports whether a swap is in flight
func (e *Executor) Busy() bool {
	return e.inFlight.Load()
}

// WalletConnected reports whether the executor can sign
func (e *Executor) WalletConnected() bool {
	return e.wallet.Connected()
}

// Execute swaps in.Amount of in.From for in.To. Preconditions are checked
// before any network call. Cancelling ctx stops the swap only up to signing;
// once submission begins it runs until confirmation, on-chain failure or
// blockhash expiry. The outcome is also published to the notifier.
func (e *Executor) Execute(ctx context.Context, in types.SwapIntent) (*types.SwapResult, error) {
	if !e.wallet.Connected() {
		err := swaperr.New(swaperr.Validation, swaperr.OpConnectWallet, wallet.ErrNotConnected)
		e.notifier.Notify(notify.Notification{
			Level: notify.LevelError,
			Title: "Please connect your wallet and enter swap amounts",
		})
		return nil, err
	}

	req, err := e.quoteRequest(in)
	if err != nil {
		e.notifier.Notify(notify.Notification{
			Level:   notify.LevelError,
			Title:   "Please connect your wallet and enter swap amounts",
			Message: err.Error(),
		})
		return nil, err
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSwapInProgress
	}
	defer e.inFlight.Store(false)
	if e.onStart != nil {
		e.onStart()
	}

	attemptID := uuid.New().String()
	log := e.log.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"from":       in.From,
		"to":         in.To,
		"amount":     in.Amount,
	})
	log.Info("Starting swap")

	sig, err := e.run(ctx, log, req)
	if err != nil {
		swaperr.LogError(log, "Swap failed", err)
		e.notifier.Notify(failureNotification(err))
		return nil, err
	}

	result := &types.SwapResult{
		AttemptID:   attemptID,
		Signature:   sig.String(),
		ExplorerURL: e.explorerURL + sig.String(),
	}
	log.WithField("signature", result.Signature).Info("Swap confirmed")
	e.notifier.Notify(notify.Notification{
		Level:   notify.LevelSuccess,
		Title:   fmt.Sprintf("Swap successful! Transaction ID: %s", result.Signature),
		Message: "Your tokens have been swapped successfully.",
		Link:    result.ExplorerURL,
	})
	return result, nil
}

func (e *Executor) quoteRequest(in types.SwapIntent) (types.QuoteRequest, error) {
	from, ok := tokens.Lookup(in.From)
	if !ok {
		return types.QuoteRequest{}, swaperr.Newf(swaperr.Validation, swaperr.OpResolveToken, "token '%s' not found", in.From)
	}
	to, ok := tokens.Lookup(in.To)
	if !ok {
		return types.QuoteRequest{}, swaperr.Newf(swaperr.Validation, swaperr.OpResolveToken, "token '%s' not found", in.To)
	}
	if from.Symbol == to.Symbol {
		return types.QuoteRequest{}, swaperr.Newf(swaperr.Validation, swaperr.OpResolveToken, "source and destination tokens must differ")
	}
	if strings.TrimSpace(in.Amount) == "" {
		return types.QuoteRequest{}, swaperr.New(swaperr.Validation, swaperr.OpEncodeAmount, ErrEmptyAmount)
	}

	units, err := amount.ToBaseUnits(in.Amount, from.Decimals)
	if err != nil {
		return types.QuoteRequest{}, err
	}
	if units.Sign() == 0 {
		return types.QuoteRequest{}, swaperr.New(swaperr.Validation, swaperr.OpEncodeAmount, ErrEmptyAmount)
	}

	return types.QuoteRequest{
		InputMint:   from.Mint,
		OutputMint:  to.Mint,
		Amount:      units.String(),
		SlippageBps: in.SlippageBps,
	}, nil
}

func (e *Executor) run(ctx context.Context, log *logrus.Entry, req types.QuoteRequest) (solana.Signature, error) {
	// 1. fresh route
	quote, err := e.quoter.Quote(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}
	log.WithField("out_amount", quote.OutAmount).Debug("Quote received")

	// 2. unsigned transaction
	encoded, err := e.builder.SwapTransaction(ctx, quote, e.wallet.PublicKey())
	if err != nil {
		return solana.Signature{}, err
	}
	rawTx, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return solana.Signature{}, swaperr.New(swaperr.Network, swaperr.OpDecodeTx, fmt.Errorf("invalid base64 transaction: %w", err))
	}
	tx, err := solana.TransactionFromBytes(rawTx)
	if err != nil {
		return solana.Signature{}, swaperr.New(swaperr.Network, swaperr.OpDecodeTx, fmt.Errorf("failed to decode transaction: %w", err))
	}

	// 3. sign
	signed, err := e.wallet.SignTransaction(ctx, tx)
	if err != nil {
		if swaperr.KindOf(err) == "" {
			err = swaperr.New(swaperr.Signing, swaperr.OpSign, err)
		}
		return solana.Signature{}, err
	}

	// 4. submit; from here on the caller can no longer cancel
	ctx = context.WithoutCancel(ctx)
	bh, err := e.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	signedRaw, err := signed.MarshalBinary()
	if err != nil {
		return solana.Signature{}, swaperr.New(swaperr.Signing, swaperr.OpSign, fmt.Errorf("failed to serialize signed transaction: %w", err))
	}
	sig, err := e.ledger.SendRawTransaction(ctx, signedRaw, e.send)
	if err != nil {
		return solana.Signature{}, err
	}
	log.WithField("signature", sig.String()).Info("Transaction submitted")

	// 5. confirm
	res, err := e.ledger.ConfirmTransaction(ctx, *bh, sig)
	if err != nil {
		if swaperr.KindOf(err) == "" {
			err = swaperr.New(swaperr.Confirmation, swaperr.OpConfirm, err)
		}
		return sig, err
	}
	if res != nil && res.Err != nil {
		return sig, swaperr.Newf(swaperr.Confirmation, swaperr.OpConfirm, "Transaction failed!")
	}

	return sig, nil
}

func failureNotification(err error) notify.Notification {
	n := notify.Notification{Level: notify.LevelError, Message: err.Error()}
	switch swaperr.KindOf(err) {
	case swaperr.Signing:
		n.Title = "Failed to sign transaction"
	case swaperr.Confirmation:
		n.Title = "Transaction failed"
	default:
		n.Title = "Swap failed"
	}
	return n
}
