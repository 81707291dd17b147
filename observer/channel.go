// Package observer delivers session events to listeners.
package observer

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
)

// DefaultCapacity is used when ChannelConfig.Capacity is not positive.
const DefaultCapacity = 256

type ChannelConfig struct {
	Name     string
	Capacity int
	// Dropped counts events rejected because the backlog was full.
	Dropped prometheus.Counter
	Logger  *zap.Logger
}

// Channel is a best-effort asynchronous core.Observer. Events are queued in
// a bounded FIFO and handed to the listeners by a single goroutine, so the
// order of events on one Channel is preserved. Notify never blocks; when
// the backlog is full the event is dropped.
type Channel[E any] struct {
	name      string
	capacity  int
	listeners []core.Observer[E]
	dropped   prometheus.Counter
	log       *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	backlog *queue.Queue
	closed  bool
	done    chan struct{}
}

func NewChannel[E any](cfg ChannelConfig, listeners ...core.Observer[E]) *Channel[E] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Channel[E]{
		name:      cfg.Name,
		capacity:  cfg.Capacity,
		listeners: listeners,
		dropped:   cfg.Dropped,
		log:       cfg.Logger.Named("observer").With(zap.String("channel", cfg.Name)),
		backlog:   queue.New(),
		done:      make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

// Notify implements core.Observer.
func (c *Channel[E]) Notify(event E) {
	c.mu.Lock()
	if c.closed || c.backlog.Length() >= c.capacity {
		c.mu.Unlock()
		if c.dropped != nil {
			c.dropped.Inc()
		}
		c.log.Debug("event dropped")
		return
	}
	c.backlog.Add(event)
	c.mu.Unlock()
	c.cond.Signal()
}

// Close stops accepting events, delivers what is already queued and waits
// for the delivery goroutine to exit.
func (c *Channel[E]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
	<-c.done
}

// Len is the number of events waiting for delivery.
func (c *Channel[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backlog.Length()
}

func (c *Channel[E]) run() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for c.backlog.Length() == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.backlog.Length() == 0 {
			c.mu.Unlock()
			return
		}
		event := c.backlog.Remove().(E)
		c.mu.Unlock()

		for _, l := range c.listeners {
			c.deliver(l, event)
		}
	}
}

func (c *Channel[E]) deliver(l core.Observer[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("listener panicked", zap.Any("panic", r))
		}
	}()
	l.Notify(event)
}
