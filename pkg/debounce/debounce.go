// Package debounce delays a value until input has been quiet for a fixed period.
package debounce

import (
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

// Debouncer emits the most recently pushed value once delay has elapsed
// without another push. At most one emission is pending at any time.
type Debouncer[T any] struct {
	clk   clock.Clock
	delay time.Duration
	emit  func(T)

	mu      sync.Mutex
	timer   *clock.Timer
	seq     uint64
	stopped bool
}

// New creates a debouncer. A nil clock uses the wall clock.
func New[T any](clk clock.Clock, delay time.Duration, emit func(T)) *Debouncer[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer[T]{
		clk:   clk,
		delay: delay,
		emit:  emit,
	}
}

// Push replaces any pending value with v and restarts the delay
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.timer = d.clk.AfterFunc(d.delay, func() {
		d.fire(seq, v)
	})
}

func (d *Debouncer[T]) fire(seq uint64, v T) {
	d.mu.Lock()
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.emit(v)
}

// Pending reports whether a value is waiting to be emitted
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending value, if any, without disabling the debouncer
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop cancels the pending emission. Later pushes are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
