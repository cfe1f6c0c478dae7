package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultInterval = 10 * time.Second

type Kind int

const (
	// Foreground is the first load of a view; callers may show a loading state.
	Foreground Kind = iota
	// Background refreshes must not disturb what the user sees.
	Background
)

func (k Kind) String() string {
	if k == Foreground {
		return "foreground"
	}
	return "background"
}

type Event int

const (
	BecameVisible Event = iota
	Focused
)

// Host is the view being kept fresh.
type Host interface {
	Visible() bool
	Focused() bool
	// Subscribe registers fn for visibility and focus events and returns the unsubscribe func.
	Subscribe(fn func(Event)) (unsubscribe func())
}

type Func func(ctx context.Context, kind Kind) error

// Controller polls a view's data while the view is visible and focused.
type Controller struct {
	host     Host
	interval time.Duration
	log      *slog.Logger

	mu sync.RWMutex
	fn Func
}

func New(host Host, interval time.Duration, fn Func, log *slog.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{host: host, interval: interval, fn: fn, log: log}
}

// SetFunc swaps the refresh callback. The ticker keeps its phase.
func (c *Controller) SetFunc(fn Func) {
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
}

// Run subscribes to the host and does one foreground refresh, then refreshes in the background on every
// tick while the host is visible and focused, and on every host event.
// It returns when ctx is done; the ticker is stopped and the host unsubscribed.
func (c *Controller) Run(ctx context.Context) error {
	events := make(chan Event, 4)
	unsubscribe := c.host.Subscribe(func(e Event) {
		select {
		case events <- e:
		default:
		}
	})
	defer unsubscribe()

	c.refresh(ctx, Foreground)

	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if c.host.Visible() && c.host.Focused() {
				c.refresh(ctx, Background)
			}
		case <-events:
			c.refresh(ctx, Background)
		}
	}
}

// Start runs the controller in a goroutine. stop cancels it and waits for teardown.
func (c *Controller) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (c *Controller) refresh(ctx context.Context, kind Kind) {
	c.mu.RLock()
	fn := c.fn
	c.mu.RUnlock()
	if fn == nil || ctx.Err() != nil {
		return
	}
	if err := fn(ctx, kind); err != nil && ctx.Err() == nil {
		c.log.Warn("refresh failed", "kind", kind.String(), "err", err)
	}
}
