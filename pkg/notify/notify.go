// Package notify delivers short user-facing messages about swaps and estimates.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a single toast-style message
type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
	Link    string `json:"link,omitempty"`
}

// Notifier publishes notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Multi fans a notification out to several notifiers
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

// Nop drops every notification
type Nop struct{}

func (Nop) Notify(Notification) {}

// Console prints notifications to a terminal
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to out, or stdout when out is nil
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var title string
	switch n.Level {
	case LevelSuccess:
		title = color.GreenString("✓ %s", n.Title)
	case LevelError:
		title = color.RedString("✗ %s", n.Title)
	default:
		title = color.CyanString("• %s", n.Title)
	}

	fmt.Fprintln(c.out, title)
	if n.Message != "" {
		fmt.Fprintf(c.out, "  %s\n", n.Message)
	}
	if n.Link != "" {
		fmt.Fprintf(c.out, "  %s\n", color.HiBlackString(n.Link))
	}
}

// Recorder keeps every notification in memory
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

// All returns a copy of the recorded notifications
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}
