package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-flow/pkg/logging"
	"token-flow/pkg/notify"
	"token-flow/pkg/swap"
	"token-flow/pkg/types"
	"token-flow/pkg/wallet"
)

// heldQuoter blocks until released, keeping a swap in flight
type heldQuoter struct {
	release chan struct{}
}

func (q heldQuoter) Quote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	select {
	case <-q.release:
		return nil, errors.New("route not found")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type staticQuoter struct {
	out string
}

func (q staticQuoter) Quote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	return &types.Quote{
		InputMint:  req.InputMint.String(),
		OutputMint: req.OutputMint.String(),
		InAmount:   req.Amount,
		OutAmount:  q.out,
	}, nil
}

// wireMessage decodes both outbound message kinds
type wireMessage struct {
	Type         string                `json:"type"`
	State        types.EstimationState `json:"state"`
	Intent       types.SwapIntent      `json:"intent"`
	SlippagePct  float64               `json:"slippage_pct"`
	Swapping     bool                  `json:"swapping"`
	CanSwap      bool                  `json:"can_swap"`
	Notification notify.Notification   `json:"notification"`
}

func newTestServer(t *testing.T, ex *swap.Executor) *httptest.Server {
	t.Helper()
	srv := New(Options{
		Quoter:   staticQuoter{out: "150250000"},
		Executor: ex,
		Debounce: 20 * time.Millisecond,
		Log:      logging.Discard(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wireMessage) bool) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, typ, value string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Inbound{Type: typ, Value: value}))
}

func isNotification(msg wireMessage) bool { return msg.Type == TypeNotification }

func TestInitialState(t *testing.T) {
	conn := dial(t, newTestServer(t, nil))

	msg := readUntil(t, conn, func(m wireMessage) bool { return m.Type == TypeState })
	assert.Equal(t, types.PhaseIdle, msg.State.Phase)
	assert.Equal(t, "sol", msg.Intent.From)
	assert.Equal(t, "usdc", msg.Intent.To)
	assert.Equal(t, 0.5, msg.SlippagePct)
	assert.False(t, msg.CanSwap)
}

func TestAmountSettlesEstimate(t *testing.T) {
	conn := dial(t, newTestServer(t, nil))
	send(t, conn, TypeAmount, "1")

	msg := readUntil(t, conn, func(m wireMessage) bool {
		return m.Type == TypeState && m.State.Phase == types.PhaseSettled
	})
	assert.Equal(t, "150.250000", msg.State.ToAmount)
	assert.Equal(t, "1", msg.State.DebouncedInput)
	assert.False(t, msg.State.IsLoading)
	assert.Equal(t, "1", msg.Intent.Amount)
}

func TestTokenAndSlippageActions(t *testing.T) {
	conn := dial(t, newTestServer(t, nil))

	send(t, conn, TypeTo, "usdt")
	msg := readUntil(t, conn, func(m wireMessage) bool {
		return m.Type == TypeState && m.Intent.To == "usdt"
	})
	assert.Equal(t, "sol", msg.Intent.From)

	send(t, conn, TypeSlippage, "1.5")
	msg = readUntil(t, conn, func(m wireMessage) bool {
		return m.Type == TypeState && m.Intent.SlippageBps == 150
	})
	assert.Equal(t, 1.5, msg.SlippagePct)
}

func TestRejectedActionsNotify(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		value string
		title string
	}{
		{"unknown action", "teleport", "", "Unknown action"},
		{"slippage out of range", TypeSlippage, "9", "Invalid input"},
		{"slippage not a number", TypeSlippage, "lots", "Invalid input"},
		{"unknown token", TypeFrom, "doge", "Invalid input"},
		{"swaps disabled", TypeSwap, "", "Swaps are disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, newTestServer(t, nil))
			send(t, conn, tt.typ, tt.value)

			msg := readUntil(t, conn, isNotification)
			assert.Equal(t, notify.LevelError, msg.Notification.Level)
			assert.Equal(t, tt.title, msg.Notification.Title)
		})
	}
}

func TestSwapWithoutWallet(t *testing.T) {
	ex := swap.New(swap.Options{
		Wallet: wallet.Disconnected{},
		Log:    logging.Discard(),
	})
	conn := dial(t, newTestServer(t, ex))
	send(t, conn, TypeSwap, "")

	msg := readUntil(t, conn, isNotification)
	assert.Equal(t, notify.LevelError, msg.Notification.Level)
	assert.Equal(t, "Please connect your wallet and enter swap amounts", msg.Notification.Title)
}

func TestSwapStateIsPublished(t *testing.T) {
	w, err := wallet.NewKeypairWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	quotes := heldQuoter{release: make(chan struct{})}
	ex := swap.New(swap.Options{
		Quoter: quotes,
		Wallet: w,
		Log:    logging.Discard(),
	})
	conn := dial(t, newTestServer(t, ex))

	send(t, conn, TypeAmount, "1")
	msg := readUntil(t, conn, func(m wireMessage) bool {
		return m.Type == TypeState && m.State.Phase == types.PhaseSettled
	})
	assert.True(t, msg.CanSwap)

	send(t, conn, TypeSwap, "")
	msg = readUntil(t, conn, func(m wireMessage) bool {
		return m.Type == TypeState && m.Swapping
	})
	assert.False(t, msg.CanSwap)
	assert.True(t, ex.Busy())

	close(quotes.release)
	msg = readUntil(t, conn, isNotification)
	assert.Equal(t, "Swap failed", msg.Notification.Title)

	msg = readUntil(t, conn, func(m wireMessage) bool { return m.Type == TypeState })
	assert.False(t, msg.Swapping)
	assert.True(t, msg.CanSwap)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestTokenList(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/tokens")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []types.Token
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 4)
	assert.Equal(t, "sol", list[0].Symbol)
	assert.Equal(t, uint8(9), list[0].Decimals)
	assert.Equal(t, "PayPal USD", list[3].Label)
}
