package swaperr

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Kind classifies a failure by how the user should be told about it
type Kind string

const (
	Validation   Kind = "validation"
	Network      Kind = "network"
	Signing      Kind = "signing"
	Confirmation Kind = "confirmation"
)

// Common operation labels
const (
	OpEncodeAmount  = "encode amount"
	OpQuote         = "fetch quote"
	OpBuildSwap     = "build swap transaction"
	OpDecodeTx      = "decode transaction"
	OpSign          = "sign transaction"
	OpBlockhash     = "fetch latest blockhash"
	OpSend          = "send transaction"
	OpConfirm       = "confirm transaction"
	OpResolveToken  = "resolve token"
	OpConnectWallet = "connect wallet"
	OpBalance       = "get balance"
	OpSetSlippage   = "set slippage"
)

// Error is a classified failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// LogError records err on entry at error level, tagged with its kind
func LogError(entry *log.Entry, msg string, err error) {
	entry.WithError(err).WithField("kind", string(KindOf(err))).Error(msg)
}
