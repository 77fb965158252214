// Package estimate keeps the displayed output amount in step with the user's
// swap intent. A single loop goroutine owns all state; quote requests run
// concurrently and report back tagged with the generation that issued them.
package estimate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/sirupsen/logrus"

	"token-flow/pkg/amount"
	"token-flow/pkg/client"
	"token-flow/pkg/debounce"
	"token-flow/pkg/intent"
	"token-flow/pkg/notify"
	"token-flow/pkg/swaperr"
	"token-flow/pkg/tokens"
	"token-flow/pkg/types"
)

// DefaultDebounce is the quiet period before an amount is quoted
const DefaultDebounce = 500 * time.Millisecond

// ErrStopped is returned by mutators once the loop has exited
var ErrStopped = errors.New("estimator stopped")

// Options configures an Orchestrator
type Options struct {
	Quoter   client.Quoter
	Clock    clock.Clock
	Debounce time.Duration
	Notifier notify.Notifier
	Log      *logrus.Entry
	Initial  *types.SwapIntent

	// OnChange is called from the loop goroutine after every state change
	OnChange func(types.EstimationState, types.SwapIntent)
}

type event struct {
	apply func() error
	done  chan error
}

type quoteResult struct {
	generation uint64
	quote      *types.Quote
	err        error
}

// Orchestrator drives debounce, quoting and decoding for one swap form
type Orchestrator struct {
	quoter   client.Quoter
	notifier notify.Notifier
	log      *logrus.Entry
	onChange func(types.EstimationState, types.SwapIntent)

	debouncer *debounce.Debouncer[string]
	events    chan event
	results   chan quoteResult
	stopped   chan struct{}

	// loop-owned
	state  types.EstimationState
	intent types.SwapIntent
	ctx    context.Context

	mu       sync.RWMutex
	snapshot types.EstimationState
	intentSn types.SwapIntent
}

// New creates an orchestrator. Run must be called before any mutator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	in := intent.Default()
	if opts.Initial != nil {
		in = *opts.Initial
	}

	o := &Orchestrator{
		quoter:   opts.Quoter,
		notifier: opts.Notifier,
		log:      opts.Log,
		onChange: opts.OnChange,
		events:   make(chan event),
		results:  make(chan quoteResult),
		stopped:  make(chan struct{}),
		state:    types.EstimationState{Phase: types.PhaseIdle},
		intent:   in,
	}
	o.snapshot = o.state
	o.intentSn = o.intent

	o.debouncer = debounce.New(opts.Clock, opts.Debounce, func(v string) {
		_ = o.post(func() error {
			o.onDebounced(v)
			return nil
		})
	})
	return o
}

// Run processes events until ctx is cancelled
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	defer close(o.stopped)
	defer o.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Debug("Estimator stopped")
			return ctx.Err()
		case ev := <-o.events:
			ev.done <- ev.apply()
		case res := <-o.results:
			o.onQuote(res)
		}
	}
}

// post runs fn on the loop goroutine and waits for it to finish
func (o *Orchestrator) post(fn func() error) error {
	ev := event{apply: fn, done: make(chan error, 1)}
	select {
	case o.events <- ev:
	case <-o.stopped:
		return ErrStopped
	}
	select {
	case err := <-ev.done:
		return err
	case <-o.stopped:
		return ErrStopped
	}
}

// State returns a copy of the current estimation state
func (o *Orchestrator) State() types.EstimationState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Intent returns a copy of the current swap intent
func (o *Orchestrator) Intent() types.SwapIntent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.intentSn
}

// SetAmount records raw input. Anything but digits and dots is removed;
// the estimate follows once input has been quiet for the debounce period.
func (o *Orchestrator) SetAmount(raw string) error {
	return o.post(func() error {
		o.intent.Amount = amount.Sanitize(raw)
		o.debouncer.Push(o.intent.Amount)
		o.publish()
		return nil
	})
}

// SetFromToken selects the source token and re-estimates immediately
func (o *Orchestrator) SetFromToken(symbol string) error {
	return o.post(func() error {
		in, err := intent.SelectFrom(o.intent, symbol)
		if err != nil {
			return err
		}
		o.intent = in
		o.trigger()
		return nil
	})
}

// SetToToken selects the destination token and re-estimates immediately
func (o *Orchestrator) SetToToken(symbol string) error {
	return o.post(func() error {
		in, err := intent.SelectTo(o.intent, symbol)
		if err != nil {
			return err
		}
		o.intent = in
		o.trigger()
		return nil
	})
}

// SetSlippage changes the slippage tolerance. It applies to the next quote.
func (o *Orchestrator) SetSlippage(pct float64) error {
	if err := intent.ValidateSlippage(pct); err != nil {
		return err
	}
	return o.post(func() error {
		o.intent.SlippageBps = intent.BpsFromPct(pct)
		o.publish()
		return nil
	})
}

// Flip exchanges source and destination. The current estimate becomes the
// new input amount and is quoted right away.
func (o *Orchestrator) Flip() error {
	return o.post(func() error {
		newAmount := amount.Normalize(o.state.ToAmount)
		o.intent = intent.Flip(o.intent, newAmount)
		o.debouncer.Cancel()
		o.state.DebouncedInput = newAmount
		o.trigger()
		return nil
	})
}

// Reset clears the amount and the estimate, as after a completed swap
func (o *Orchestrator) Reset() error {
	return o.post(func() error {
		o.intent.Amount = ""
		o.debouncer.Cancel()
		o.state.DebouncedInput = ""
		o.trigger()
		return nil
	})
}

func (o *Orchestrator) onDebounced(v string) {
	if v == o.state.DebouncedInput {
		return
	}
	o.state.DebouncedInput = v
	o.trigger()
}

// trigger starts a new estimate for the current intent and debounced input
func (o *Orchestrator) trigger() {
	o.state.Generation++
	gen := o.state.Generation
	o.state.Err = ""

	raw := o.state.DebouncedInput
	if !amount.IsValid(raw) {
		o.settle("")
		return
	}

	from, fromOK := tokens.Lookup(o.intent.From)
	to, toOK := tokens.Lookup(o.intent.To)
	if !fromOK || !toOK {
		o.fail(swaperr.Newf(swaperr.Validation, swaperr.OpResolveToken, "invalid token selection"))
		return
	}

	units, err := amount.ToBaseUnits(raw, from.Decimals)
	if err != nil {
		o.settle("")
		return
	}
	if units.Sign() == 0 {
		o.settle("")
		return
	}

	req := types.QuoteRequest{
		InputMint:   from.Mint,
		OutputMint:  to.Mint,
		Amount:      units.String(),
		SlippageBps: o.intent.SlippageBps,
	}

	o.state.Phase = types.PhaseEstimating
	o.state.IsLoading = true
	o.publish()

	o.log.WithFields(logrus.Fields{
		"generation": gen,
		"from":       from.Symbol,
		"to":         to.Symbol,
		"amount":     req.Amount,
	}).Debug("Requesting quote")

	ctx := o.ctx
	go func() {
		quote, err := o.quoter.Quote(ctx, req)
		select {
		case o.results <- quoteResult{generation: gen, quote: quote, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) onQuote(res quoteResult) {
	if res.generation != o.state.Generation {
		o.log.WithFields(logrus.Fields{
			"generation": res.generation,
			"current":    o.state.Generation,
		}).Debug("Discarding stale quote")
		return
	}

	if res.err != nil {
		o.fail(res.err)
		return
	}

	to, ok := tokens.Lookup(o.intent.To)
	if !ok {
		o.fail(swaperr.Newf(swaperr.Validation, swaperr.OpResolveToken, "invalid token selection"))
		return
	}
	o.settle(amount.ToDisplay(res.quote.OutAmount, to.Decimals))
}

func (o *Orchestrator) settle(toAmount string) {
	o.state.Phase = types.PhaseSettled
	o.state.IsLoading = false
	o.state.ToAmount = toAmount
	o.publish()
}

func (o *Orchestrator) fail(err error) {
	o.state.Phase = types.PhaseFailed
	o.state.IsLoading = false
	o.state.ToAmount = ""
	o.state.Err = err.Error()
	o.publish()

	swaperr.LogError(o.log, "Error fetching exchange rate", err)
	o.notifier.Notify(notify.Notification{
		Level:   notify.LevelError,
		Title:   "Could not fetch exchange rate",
		Message: err.Error(),
	})
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	o.snapshot = o.state
	o.intentSn = o.intent
	o.mu.Unlock()

	if o.onChange != nil {
		o.onChange(o.state, o.intent)
	}
}

// CanSwap reports whether the swap action should be enabled
func CanSwap(st types.EstimationState, in types.SwapIntent, walletConnected, swapping bool) bool {
	return walletConnected &&
		!swapping &&
		!st.IsLoading &&
		in.Amount != "" &&
		st.ToAmount != ""
}
