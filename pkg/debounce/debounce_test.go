package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) record(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestLastWriteWins(t *testing.T) {
	clk := clock.NewMock()
	rec := &recorder{}
	d := New(clk, 500*time.Millisecond, rec.record)

	d.Push("1")
	clk.Add(200 * time.Millisecond)
	d.Push("1.")
	clk.Add(200 * time.Millisecond)
	d.Push("1.5")

	assert.Empty(t, rec.get())
	assert.True(t, d.Pending())

	clk.Add(499 * time.Millisecond)
	assert.Empty(t, rec.get())

	clk.Add(time.Millisecond)
	assert.Equal(t, []string{"1.5"}, rec.get())
	assert.False(t, d.Pending())
}

func TestSeparateBursts(t *testing.T) {
	clk := clock.NewMock()
	rec := &recorder{}
	d := New(clk, 500*time.Millisecond, rec.record)

	d.Push("a")
	clk.Add(time.Second)
	d.Push("b")
	clk.Add(time.Second)

	assert.Equal(t, []string{"a", "b"}, rec.get())
}

func TestStopCancelsPending(t *testing.T) {
	clk := clock.NewMock()
	rec := &recorder{}
	d := New(clk, 500*time.Millisecond, rec.record)

	d.Push("x")
	d.Stop()
	clk.Add(time.Second)
	assert.Empty(t, rec.get())

	d.Push("y")
	clk.Add(time.Second)
	assert.Empty(t, rec.get())
	assert.False(t, d.Pending())
}

func TestSupersededFireIsDropped(t *testing.T) {
	clk := clock.NewMock()
	rec := &recorder{}
	d := New(clk, 500*time.Millisecond, rec.record)

	d.Push("old")
	d.mu.Lock()
	staleSeq := d.seq
	d.mu.Unlock()
	d.Push("new")

	// a callback that raced past Timer.Stop must not emit
	d.fire(staleSeq, "old")
	assert.Empty(t, rec.get())

	clk.Add(500 * time.Millisecond)
	assert.Equal(t, []string{"new"}, rec.get())
}

func TestCancelKeepsDebouncerUsable(t *testing.T) {
	clk := clock.NewMock()
	rec := &recorder{}
	d := New(clk, 500*time.Millisecond, rec.record)

	d.Push("dropped")
	d.Cancel()
	assert.False(t, d.Pending())
	clk.Add(time.Second)
	assert.Empty(t, rec.get())

	d.Push("kept")
	clk.Add(time.Second)
	assert.Equal(t, []string{"kept"}, rec.get())
}
