package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-flow/pkg/client"
	"token-flow/pkg/ledger"
	"token-flow/pkg/logging"
	"token-flow/pkg/notify"
	"token-flow/pkg/swaperr"
	"token-flow/pkg/types"
	"token-flow/pkg/wallet"
)

const quoteBody = `{"inputMint":"So11111111111111111111111111111111111111112","inAmount":"1000000000","outputMint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","outAmount":"150250000","slippageBps":50,"priceImpactPct":"0"}`

// fakeService serves /quote and /swap, building a transfer paid by payer
type fakeService struct {
	payer      solana.PublicKey
	quoteCalls atomic.Int32
	swapCalls  atomic.Int32
	quoteFail  atomic.Bool
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/quote":
		f.quoteCalls.Add(1)
		if f.quoteFail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"route not found"}`))
			return
		}
		_, _ = w.Write([]byte(quoteBody))
	case "/swap":
		f.swapCalls.Add(1)
		ix := system.NewTransferInstruction(1000, f.payer, solana.NewWallet().PublicKey()).Build()
		tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{4, 2}, solana.TransactionPayer(f.payer))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// unsigned, with a zeroed slot for the payer signature
		tx.Signatures = make([]solana.Signature, 1)
		raw, err := tx.MarshalBinary()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"swapTransaction":"` + base64.StdEncoding.EncodeToString(raw) + `"}`))
	default:
		http.NotFound(w, r)
	}
}

type fakeLedger struct {
	mu            sync.Mutex
	sent          [][]byte
	opts          []ledger.SendOptions
	confirmResult *ledger.ConfirmResult
	confirmErr    error
	block         chan struct{}
	entered       chan struct{}

	// afterSend runs once the transaction has been handed over
	afterSend func()
	// settleDelay makes confirmation take a while unless ctx ends first
	settleDelay time.Duration
}

func (f *fakeLedger) GetLatestBlockhash(ctx context.Context) (*ledger.BlockhashWithExpiry, error) {
	return &ledger.BlockhashWithExpiry{Blockhash: solana.Hash{4, 2}, LastValidBlockHeight: 100}, nil
}

func (f *fakeLedger) SendRawTransaction(ctx context.Context, raw []byte, opts ledger.SendOptions) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, raw)
	f.opts = append(f.opts, opts)

	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	if f.afterSend != nil {
		f.afterSend()
	}
	return tx.Signatures[0], nil
}

func (f *fakeLedger) ConfirmTransaction(ctx context.Context, bh ledger.BlockhashWithExpiry, sig solana.Signature) (*ledger.ConfirmResult, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.settleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.settleDelay):
		}
	}
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.confirmResult != nil {
		return f.confirmResult, nil
	}
	return &ledger.ConfirmResult{Slot: 1}, nil
}

func (f *fakeLedger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type refusingWallet struct {
	pub solana.PublicKey
}

func (w refusingWallet) Connected() bool             { return true }
func (w refusingWallet) PublicKey() solana.PublicKey { return w.pub }
func (w refusingWallet) SignTransaction(context.Context, *solana.Transaction) (*solana.Transaction, error) {
	return nil, errors.New("user rejected the request")
}

type fixture struct {
	exec     *Executor
	service  *fakeService
	ledger   *fakeLedger
	notifier *notify.Recorder
	wallet   wallet.Wallet
}

func newFixture(t *testing.T, w wallet.Wallet) *fixture {
	t.Helper()
	if w == nil {
		kp, err := wallet.NewKeypairWallet(solana.NewWallet().PrivateKey.String())
		require.NoError(t, err)
		w = kp
	}

	f := &fixture{
		service:  &fakeService{payer: w.PublicKey()},
		ledger:   &fakeLedger{},
		notifier: &notify.Recorder{},
		wallet:   w,
	}
	srv := httptest.NewServer(f.service)
	t.Cleanup(srv.Close)

	jup := client.NewJupiterClient(srv.URL, client.WithLogger(logging.Discard()))
	f.exec = New(Options{
		Quoter:   jup,
		Builder:  jup,
		Wallet:   w,
		Ledger:   f.ledger,
		Notifier: f.notifier,
		Log:      logging.Discard(),
		Send:     DefaultSendOptions(),
	})
	return f
}

func solToUSDC(amount string) types.SwapIntent {
	return types.SwapIntent{From: "sol", To: "usdc", Amount: amount, SlippageBps: 50}
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.exec.Execute(context.Background(), solToUSDC("1"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.AttemptID)
	assert.Equal(t, "https://solscan.io/tx/"+res.Signature, res.ExplorerURL)

	require.Equal(t, 1, f.ledger.sentCount())
	assert.Equal(t, ledger.SendOptions{SkipPreflight: true, MaxRetries: 2}, f.ledger.opts[0])

	tx, err := solana.TransactionFromBytes(f.ledger.sent[0])
	require.NoError(t, err)
	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, tx.Signatures[0].Verify(f.wallet.PublicKey(), msg))
	assert.Equal(t, tx.Signatures[0].String(), res.Signature)

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)
	assert.Equal(t, res.ExplorerURL, notes[0].Link)
	assert.False(t, f.exec.Busy())
}

func TestExecuteRejectsWithoutNetwork(t *testing.T) {
	tests := []struct {
		name   string
		wallet wallet.Wallet
		intent types.SwapIntent
	}{
		{"disconnected wallet", wallet.Disconnected{}, solToUSDC("1")},
		{"empty amount", nil, solToUSDC("")},
		{"zero amount", nil, solToUSDC("0")},
		{"garbage amount", nil, solToUSDC("abc")},
		{"unknown token", nil, types.SwapIntent{From: "doge", To: "usdc", Amount: "1"}},
		{"same token", nil, types.SwapIntent{From: "sol", To: "sol", Amount: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.wallet)

			_, err := f.exec.Execute(context.Background(), tt.intent)
			require.Error(t, err)
			assert.True(t, swaperr.Is(err, swaperr.Validation))
			assert.Equal(t, int32(0), f.service.quoteCalls.Load())
			assert.Equal(t, 0, f.ledger.sentCount())
			require.Len(t, f.notifier.All(), 1)
			assert.Equal(t, notify.LevelError, f.notifier.All()[0].Level)
		})
	}
}

func TestExecuteQuoteFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.service.quoteFail.Store(true)

	_, err := f.exec.Execute(context.Background(), solToUSDC("1"))
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.Network))
	assert.Contains(t, err.Error(), "route not found")
	assert.Equal(t, int32(0), f.service.swapCalls.Load())

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Swap failed", notes[0].Title)
}

func TestExecuteSigningRefused(t *testing.T) {
	f := newFixture(t, refusingWallet{pub: solana.NewWallet().PublicKey()})

	_, err := f.exec.Execute(context.Background(), solToUSDC("1"))
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.Signing))
	assert.Equal(t, 0, f.ledger.sentCount())

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Failed to sign transaction", notes[0].Title)
}

func TestExecuteConfirmationFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.confirmResult = &ledger.ConfirmResult{Slot: 9, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}

	_, err := f.exec.Execute(context.Background(), solToUSDC("1"))
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.Confirmation))
	assert.Equal(t, "Transaction failed", f.notifier.All()[0].Title)
}

func TestExecuteBlockhashExpired(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.confirmErr = swaperr.New(swaperr.Confirmation, swaperr.OpConfirm, ledger.ErrBlockhashExpired)

	_, err := f.exec.Execute(context.Background(), solToUSDC("1"))
	assert.ErrorIs(t, err, ledger.ErrBlockhashExpired)
	assert.True(t, swaperr.Is(err, swaperr.Confirmation))
}

func TestExecuteOneAtATime(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.block = make(chan struct{})
	f.ledger.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := f.exec.Execute(context.Background(), solToUSDC("1"))
		errc <- err
	}()

	select {
	case <-f.ledger.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first swap never reached confirmation")
	}
	assert.True(t, f.exec.Busy())

	_, err := f.exec.Execute(context.Background(), solToUSDC("2"))
	assert.ErrorIs(t, err, ErrSwapInProgress)

	close(f.ledger.block)
	require.NoError(t, <-errc)
	assert.False(t, f.exec.Busy())
	assert.Equal(t, 1, f.ledger.sentCount())
}

func TestWithNotifierSharesInFlight(t *testing.T) {
	f := newFixture(t, nil)
	extra := &notify.Recorder{}
	view := f.exec.WithNotifier(extra)

	f.ledger.block = make(chan struct{})
	f.ledger.entered = make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		_, err := view.Execute(context.Background(), solToUSDC("1"))
		errc <- err
	}()

	<-f.ledger.entered
	assert.True(t, f.exec.Busy())
	_, err := f.exec.Execute(context.Background(), solToUSDC("1"))
	assert.ErrorIs(t, err, ErrSwapInProgress)

	close(f.ledger.block)
	require.NoError(t, <-errc)
	assert.Len(t, extra.All(), 1)
	assert.Len(t, f.notifier.All(), 1)
}

func TestExecuteCompletesWhenCancelledAfterSend(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.ledger.afterSend = cancel
	f.ledger.settleDelay = 50 * time.Millisecond

	res, err := f.exec.Execute(ctx, solToUSDC("1"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, 1, f.ledger.sentCount())

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)
}

func TestExecuteCancelledBeforeSubmission(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.exec.Execute(ctx, solToUSDC("1"))
	require.Error(t, err)
	assert.Equal(t, 0, f.ledger.sentCount())
}

func TestOnStartRunsWhileBusy(t *testing.T) {
	f := newFixture(t, nil)
	var busyAtStart atomic.Bool
	var starts atomic.Int32
	view := f.exec.WithOnStart(func() {
		starts.Add(1)
		busyAtStart.Store(f.exec.Busy())
	})

	_, err := view.Execute(context.Background(), solToUSDC("1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), starts.Load())
	assert.True(t, busyAtStart.Load())
	assert.False(t, f.exec.Busy())

	_, err = view.Execute(context.Background(), solToUSDC("0"))
	require.Error(t, err)
	assert.Equal(t, int32(1), starts.Load())
}
