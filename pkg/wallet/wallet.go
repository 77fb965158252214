// Package wallet provides the signing capability used by the swap executor.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"token-flow/pkg/swaperr"
)

var (
	// ErrNotConnected is returned when signing is requested without a wallet
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNotSigner is returned when the transaction does not require this wallet's signature
	ErrNotSigner = errors.New("wallet is not a signer of this transaction")
)

// Wallet signs transactions on behalf of a single account
type Wallet interface {
	Connected() bool
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// KeypairWallet signs with a locally provisioned private key
type KeypairWallet struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewKeypairWallet loads a base58 encoded private key
func NewKeypairWallet(privateKeyBase58 string) (*KeypairWallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &KeypairWallet{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

// Connected is always true for a loaded keypair
func (w *KeypairWallet) Connected() bool {
	return true
}

// PublicKey returns the address derived from the private key
func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.publicKey
}

// SignTransaction adds this wallet's signature to tx in place and returns it.
// Signatures from other signers are left untouched.
func (w *KeypairWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, swaperr.New(swaperr.Signing, swaperr.OpSign, err)
	}
	if tx == nil {
		return nil, swaperr.Newf(swaperr.Signing, swaperr.OpSign, "transaction is required")
	}
	if !tx.IsSigner(w.publicKey) {
		return nil, swaperr.New(swaperr.Signing, swaperr.OpSign, ErrNotSigner)
	}

	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.publicKey) {
			return &w.privateKey
		}
		return nil
	})
	if err != nil {
		return nil, swaperr.New(swaperr.Signing, swaperr.OpSign, fmt.Errorf("failed to sign transaction: %w", err))
	}

	return tx, nil
}

// Disconnected is the wallet used when no key is configured
type Disconnected struct{}

// Connected always reports false
func (Disconnected) Connected() bool {
	return false
}

// PublicKey returns the zero key
func (Disconnected) PublicKey() solana.PublicKey {
	return solana.PublicKey{}
}

// SignTransaction always fails with ErrNotConnected
func (Disconnected) SignTransaction(context.Context, *solana.Transaction) (*solana.Transaction, error) {
	return nil, swaperr.New(swaperr.Signing, swaperr.OpSign, ErrNotConnected)
}

// FromPrivateKey returns a keypair wallet, or a disconnected one for an empty key
func FromPrivateKey(privateKeyBase58 string) (Wallet, error) {
	if privateKeyBase58 == "" {
		return Disconnected{}, nil
	}
	w, err := NewKeypairWallet(privateKeyBase58)
	if err != nil {
		return nil, swaperr.New(swaperr.Validation, swaperr.OpConnectWallet, err)
	}
	return w, nil
}
