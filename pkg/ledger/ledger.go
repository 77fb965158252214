// Package ledger submits transactions and waits for their confirmation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"token-flow/pkg/swaperr"
)

// ErrBlockhashExpired is returned when the confirmation window closes first
var ErrBlockhashExpired = errors.New("block height exceeded: transaction blockhash expired")

// BlockhashWithExpiry is a recent blockhash and the last block height it is valid for
type BlockhashWithExpiry struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// SendOptions controls transaction submission
type SendOptions struct {
	SkipPreflight bool
	MaxRetries    uint
}

// ConfirmResult is the final status of a confirmed transaction.
// Err is the on-chain error value, nil on success.
type ConfirmResult struct {
	Slot   uint64
	Status rpc.ConfirmationStatusType
	Err    interface{}
}

// Client is the ledger capability the swap executor depends on
type Client interface {
	GetLatestBlockhash(ctx context.Context) (*BlockhashWithExpiry, error)
	SendRawTransaction(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, bh BlockhashWithExpiry, sig solana.Signature) (*ConfirmResult, error)
}

// RPCClient implements Client over Solana JSON-RPC
type RPCClient struct {
	client       *rpc.Client
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	clk          clock.Clock
	log          *logrus.Entry
}

// Option configures an RPCClient
type Option func(*RPCClient)

// WithCommitment sets the commitment used for blockhashes and confirmation
func WithCommitment(c rpc.CommitmentType) Option {
	return func(r *RPCClient) {
		r.commitment = c
	}
}

// WithPollInterval sets how often signature status is polled
func WithPollInterval(d time.Duration) Option {
	return func(r *RPCClient) {
		r.pollInterval = d
	}
}

// WithClock replaces the wall clock
func WithClock(clk clock.Clock) Option {
	return func(r *RPCClient) {
		r.clk = clk
	}
}

// WithLogger sets the log entry
func WithLogger(log *logrus.Entry) Option {
	return func(r *RPCClient) {
		r.log = log
	}
}

// NewRPCClient connects to the RPC endpoint at url
func NewRPCClient(url string, opts ...Option) *RPCClient {
	r := &RPCClient{
		client:       rpc.New(url),
		commitment:   rpc.CommitmentConfirmed,
		pollInterval: 500 * time.Millisecond,
		clk:          clock.New(),
		log:          logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParseCommitment maps a config string to a commitment level, defaulting to confirmed
func ParseCommitment(s string) rpc.CommitmentType {
	switch strings.ToLower(s) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// GetLatestBlockhash returns a recent blockhash with its validity window
func (r *RPCClient) GetLatestBlockhash(ctx context.Context) (*BlockhashWithExpiry, error) {
	out, err := r.client.GetLatestBlockhash(ctx, r.commitment)
	if err != nil {
		return nil, swaperr.New(swaperr.Network, swaperr.OpBlockhash, fmt.Errorf("failed to get latest blockhash: %w", err))
	}
	if out == nil || out.Value == nil {
		return nil, swaperr.Newf(swaperr.Network, swaperr.OpBlockhash, "empty blockhash response")
	}

	return &BlockhashWithExpiry{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SendRawTransaction submits an already signed, serialized transaction
func (r *RPCClient) SendRawTransaction(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error) {
	maxRetries := opts.MaxRetries
	txOpts := rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: r.commitment,
		MaxRetries:          &maxRetries,
	}

	sig, err := r.client.SendRawTransactionWithOpts(ctx, raw, txOpts)
	if err != nil {
		return solana.Signature{}, swaperr.New(swaperr.Network, swaperr.OpSend, fmt.Errorf("failed to send transaction: %w", err))
	}

	r.log.WithField("signature", sig.String()).Debug("Transaction submitted")
	return sig, nil
}

// ConfirmTransaction polls until sig reaches the configured commitment or the
// blockhash validity window closes. An on-chain failure is returned in the
// result and as a confirmation error.
func (r *RPCClient) ConfirmTransaction(ctx context.Context, bh BlockhashWithExpiry, sig solana.Signature) (*ConfirmResult, error) {
	ticker := r.clk.Ticker(r.pollInterval)
	defer ticker.Stop()

	for {
		result, err := r.checkStatus(ctx, sig)
		if err != nil {
			return nil, err
		}
		if result != nil {
			if result.Err != nil {
				return result, swaperr.Newf(swaperr.Confirmation, swaperr.OpConfirm, "transaction %s failed: %v", sig, result.Err)
			}
			return result, nil
		}

		height, err := r.client.GetBlockHeight(ctx, r.commitment)
		if err != nil {
			r.log.WithError(err).Debug("Block height unavailable")
		} else if height > bh.LastValidBlockHeight {
			return nil, swaperr.New(swaperr.Confirmation, swaperr.OpConfirm, ErrBlockhashExpired)
		}

		select {
		case <-ctx.Done():
			return nil, swaperr.New(swaperr.Confirmation, swaperr.OpConfirm, ctx.Err())
		case <-ticker.C:
		}
	}
}

// checkStatus returns a result once the wanted commitment is reached, nil while pending
func (r *RPCClient) checkStatus(ctx context.Context, sig solana.Signature) (*ConfirmResult, error) {
	out, err := r.client.GetSignatureStatuses(ctx, false, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.WithError(err).Debug("Signature status unavailable")
		return nil, nil
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	status := out.Value[0]
	result := &ConfirmResult{
		Slot:   status.Slot,
		Status: status.ConfirmationStatus,
		Err:    status.Err,
	}
	if status.Err != nil || reached(status.ConfirmationStatus, r.commitment) {
		return result, nil
	}
	return nil, nil
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	wantRank := map[rpc.CommitmentType]int{
		rpc.CommitmentProcessed: 1,
		rpc.CommitmentConfirmed: 2,
		rpc.CommitmentFinalized: 3,
	}[want]
	return rank[status] >= wantRank && rank[status] > 0
}

// TransactionInfo is a summary of a landed transaction
type TransactionInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	Fee       uint64      `json:"fee"`
	Err       interface{} `json:"err"`
	BlockTime *int64      `json:"block_time,omitempty"`
}

// GetTransactionInfo looks up a transaction by signature
func (r *RPCClient) GetTransactionInfo(ctx context.Context, txSignature string) (*TransactionInfo, error) {
	sig, err := solana.SignatureFromBase58(txSignature)
	if err != nil {
		return nil, swaperr.New(swaperr.Validation, swaperr.OpConfirm, fmt.Errorf("invalid transaction signature: %w", err))
	}

	maxVersion := uint64(0)
	txInfo, err := r.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, swaperr.New(swaperr.Network, swaperr.OpConfirm, fmt.Errorf("failed to get transaction: %w", err))
	}
	if txInfo == nil {
		return nil, swaperr.New(swaperr.Network, swaperr.OpConfirm, rpc.ErrNotFound)
	}

	info := &TransactionInfo{
		Signature: txSignature,
		Slot:      txInfo.Slot,
	}
	if txInfo.Meta != nil {
		info.Fee = txInfo.Meta.Fee
		info.Err = txInfo.Meta.Err
	}
	if txInfo.BlockTime != nil {
		bt := int64(*txInfo.BlockTime)
		info.BlockTime = &bt
	}

	return info, nil
}

// GetBalance returns the lamport balance of an account
func (r *RPCClient) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	balance, err := r.client.GetBalance(ctx, account, r.commitment)
	if err != nil {
		return 0, swaperr.New(swaperr.Network, swaperr.OpBalance, fmt.Errorf("failed to get balance: %w", err))
	}
	return balance.Value, nil
}
