// Package correlator multiplexes a Link's single decoded-message stream
// into many outstanding request/response waiters. It also forks every
// inbound message to an inventory sink, because a single HEARTBEAT must
// both populate the Device's module inventory and satisfy a waitForModules
// gate.
package correlator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridctl/internal/coreerr"
	"gridctl/internal/protocol"
	"gridctl/internal/pubsub"
	"gridctl/internal/transport"
)

// Sink receives every decoded message, regardless of whether any Waiter
// matches it — the Device uses this to build its module inventory from
// HEARTBEAT traffic.
type Sink func(protocol.DecodedMessage)

type waiter struct {
	id       string
	filter   protocol.Filter
	deadline time.Time
	resolve  chan result
}

type result struct {
	msg protocol.DecodedMessage
	err error
}

// Correlator owns an ordered list of waiters and resolves every one whose
// filter matches an inbound message — not just the first, since a
// HEARTBEAT must satisfy both the inventory sink and a waitForModules gate.
type Correlator struct {
	link *transport.Link
	log  zerolog.Logger

	mu      sync.Mutex
	waiters []*waiter
	sinks   []Sink
	closed  bool

	msgSub    *pubsub.Subscription
	closeSub  *pubsub.Subscription
	closeOnce sync.Once
}

// New starts multiplexing link's message stream immediately.
func New(link *transport.Link, log zerolog.Logger) *Correlator {
	c := &Correlator{
		link:     link,
		log:      log,
		msgSub:   link.Subscribe(transport.TopicMessage),
		closeSub: link.Subscribe(transport.TopicClose),
	}
	go c.run()
	return c
}

// AddSink registers a function called with every inbound message, matched
// or not. Intended for the Device's heartbeat-derived inventory.
func (c *Correlator) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

func (c *Correlator) run() {
	for {
		select {
		case m, ok := <-c.msgSub.Channel():
			if !ok {
				c.cancelAll()
				return
			}
			c.dispatch(m.Payload.(protocol.DecodedMessage))
		case <-c.closeSub.Channel():
			c.cancelAll()
			return
		}
	}
}

func (c *Correlator) dispatch(msg protocol.DecodedMessage) {
	c.mu.Lock()
	sinks := append([]Sink(nil), c.sinks...)
	var matched []*waiter
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.filter.Match(msg) {
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	for _, s := range sinks {
		s(msg)
	}
	for _, w := range matched {
		w.resolve <- result{msg: msg}
	}
}

// Await registers a Waiter for filter and blocks until a matching message
// arrives, the deadline passes, or the Correlator is closed. Waiter
// lifetimes are strictly bounded by the earlier of those three events.
func (c *Correlator) Await(filter protocol.Filter, timeout time.Duration) (protocol.DecodedMessage, error) {
	w := &waiter{
		id:       uuid.NewString(),
		filter:   filter,
		deadline: time.Now().Add(timeout),
		resolve:  make(chan result, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.DecodedMessage{}, coreerr.New(coreerr.Cancelled, "correlator.Await", "correlator closed")
	}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-w.resolve:
		return r.msg, r.err
	case <-timer.C:
		c.removeWaiter(w)
		return protocol.DecodedMessage{}, coreerr.New(coreerr.Timeout, "correlator.Await", "no matching message within "+timeout.String())
	}
}

// removeWaiter drops target from the waiter list if it hasn't resolved
// yet; Await calls it when its timeout fires.
func (c *Correlator) removeWaiter(target *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// cancelAll resolves every outstanding waiter with a terminal Cancelled
// error — used when the underlying Link closes.
func (c *Correlator) cancelAll() {
	c.mu.Lock()
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w.resolve <- result{err: coreerr.New(coreerr.Cancelled, "correlator", "link closed")}
	}
}

// Close unsubscribes from the Link and cancels every outstanding waiter.
func (c *Correlator) Close() {
	c.closeOnce.Do(func() {
		c.msgSub.Unsubscribe()
		c.closeSub.Unsubscribe()
		c.cancelAll()
	})
}
