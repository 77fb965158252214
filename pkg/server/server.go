// Package server exposes the swap widget over a websocket. Each connection
// gets its own estimator; swaps go through one shared executor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"token-flow/pkg/client"
	"token-flow/pkg/estimate"
	"token-flow/pkg/intent"
	"token-flow/pkg/notify"
	"token-flow/pkg/swap"
	"token-flow/pkg/tokens"
	"token-flow/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message types
const (
	TypeAmount       = "amount"
	TypeFrom         = "from"
	TypeTo           = "to"
	TypeSlippage     = "slippage"
	TypeFlip         = "flip"
	TypeSwap         = "swap"
	TypeState        = "state"
	TypeNotification = "notification"
)

// Inbound is a user action sent by the widget
type Inbound struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// StateMessage is pushed after every state change
type StateMessage struct {
	Type            string                `json:"type"`
	State           types.EstimationState `json:"state"`
	Intent          types.SwapIntent      `json:"intent"`
	SlippagePct     float64               `json:"slippage_pct"`
	WalletConnected bool                  `json:"wallet_connected"`
	Swapping        bool                  `json:"swapping"`
	CanSwap         bool                  `json:"can_swap"`
}

// NotificationMessage carries a toast to the widget
type NotificationMessage struct {
	Type         string              `json:"type"`
	Notification notify.Notification `json:"notification"`
}

// Options configures a Server
type Options struct {
	Quoter   client.Quoter
	Executor *swap.Executor
	Clock    clock.Clock
	Debounce time.Duration
	Log      *logrus.Entry
}

// Server serves the widget protocol
type Server struct {
	opts     Options
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

// New creates a server
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		opts: opts,
		log:  opts.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/tokens", s.handleTokens)
	mux.HandleFunc("/ws", s.handleWS)

	return mux
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Widget server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokens.All()); err != nil {
		s.log.WithError(err).Warn("Failed to write token list")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	sess := newSession(s, conn)
	sess.serve(r.Context())
}

// session is one connected widget
type session struct {
	id     string
	srv    *Server
	conn   *websocket.Conn
	log    *logrus.Entry
	send   chan interface{}
	est    *estimate.Orchestrator
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(s *Server, conn *websocket.Conn) *session {
	id := uuid.New().String()
	sess := &session{
		id:   id,
		srv:  s,
		conn: conn,
		log:  s.log.WithField("session", id),
		send: make(chan interface{}, sendBuffer),
	}

	sess.est = estimate.New(estimate.Options{
		Quoter:   s.opts.Quoter,
		Clock:    s.opts.Clock,
		Debounce: s.opts.Debounce,
		Notifier: notify.Func(sess.notify),
		Log:      sess.log.WithField("component", "estimate"),
		OnChange: func(st types.EstimationState, in types.SwapIntent) {
			sess.enqueue(sess.stateMessage(st, in))
		},
	})
	return sess
}

func (c *session) serve(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)
	defer c.cancel()
	defer c.conn.Close()

	go func() {
		_ = c.est.Run(c.ctx)
	}()
	go c.writeLoop()

	c.log.Info("Widget connected")
	c.publishState()
	c.readLoop()
	c.log.Info("Widget disconnected")
}

func (c *session) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("Websocket read failed")
			}
			return
		}
		c.handle(msg)
	}
}

func (c *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).Warn("Websocket write failed")
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// enqueue never blocks; a full queue drops the message
func (c *session) enqueue(msg interface{}) {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("Send queue full, dropping message")
	}
}

func (c *session) notify(n notify.Notification) {
	c.enqueue(NotificationMessage{Type: TypeNotification, Notification: n})
}

// publishState pushes the current snapshot, including the swap flags
func (c *session) publishState() {
	c.enqueue(c.stateMessage(c.est.State(), c.est.Intent()))
}

func (c *session) stateMessage(st types.EstimationState, in types.SwapIntent) StateMessage {
	connected := false
	swapping := false
	if ex := c.srv.opts.Executor; ex != nil {
		connected = ex.WalletConnected()
		swapping = ex.Busy()
	}
	return StateMessage{
		Type:            TypeState,
		State:           st,
		Intent:          in,
		SlippagePct:     intent.PctFromBps(in.SlippageBps),
		WalletConnected: connected,
		Swapping:        swapping,
		CanSwap:         estimate.CanSwap(st, in, connected, swapping),
	}
}

func (c *session) handle(msg Inbound) {
	var err error
	switch msg.Type {
	case TypeAmount:
		err = c.est.SetAmount(msg.Value)
	case TypeFrom:
		err = c.est.SetFromToken(msg.Value)
	case TypeTo:
		err = c.est.SetToToken(msg.Value)
	case TypeSlippage:
		var pct float64
		pct, err = strconv.ParseFloat(msg.Value, 64)
		if err == nil {
			err = c.est.SetSlippage(pct)
		}
	case TypeFlip:
		err = c.est.Flip()
	case TypeSwap:
		c.startSwap()
	default:
		c.notify(notify.Notification{
			Level:   notify.LevelError,
			Title:   "Unknown action",
			Message: msg.Type,
		})
		return
	}

	if err != nil {
		c.log.WithError(err).WithField("type", msg.Type).Debug("Action rejected")
		c.notify(notify.Notification{
			Level:   notify.LevelError,
			Title:   "Invalid input",
			Message: err.Error(),
		})
	}
}

func (c *session) startSwap() {
	if c.srv.opts.Executor == nil {
		c.notify(notify.Notification{Level: notify.LevelError, Title: "Swaps are disabled"})
		return
	}
	ex := c.srv.opts.Executor.
		WithNotifier(notify.Func(c.notify)).
		WithOnStart(c.publishState)

	in := c.est.Intent()
	go func() {
		_, err := ex.Execute(c.ctx, in)
		if errors.Is(err, swap.ErrSwapInProgress) {
			c.notify(notify.Notification{Level: notify.LevelError, Title: "Swap failed", Message: err.Error()})
			return
		}
		if err != nil {
			c.publishState()
			return
		}
		_ = c.est.Reset()
	}()
}
