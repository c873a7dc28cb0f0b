package progress

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives progress messages. Send must not block for long; the
// import worker calls it inline.
type Sink interface {
	Send(Message)
}

// Channel is an unbounded, order-preserving queue with a single consumer.
// Send never blocks; a slow consumer only grows the backlog.
type Channel struct {
	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
	out    chan Message
}

// NewChannel creates a Channel and starts its delivery goroutine.
func NewChannel() *Channel {
	c := &Channel{
		notify: make(chan struct{}, 1),
		out:    make(chan Message),
	}
	go c.pump()
	return c
}

// Send enqueues m. Messages sent after Close are dropped.
func (c *Channel) Send(m Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, m)
	c.mu.Unlock()
	c.wake()
}

// Close stops accepting messages. Messages already queued are still
// delivered before Messages is closed.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wake()
}

// Messages returns the consumer side.
func (c *Channel) Messages() <-chan Message {
	return c.out
}

func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) pump() {
	defer close(c.out)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			<-c.notify
			continue
		}
		m := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.out <- m
	}
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send implements Sink.
func (r *Recorder) Send(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Tee fans a message out to several sinks in order.
type Tee []Sink

// Send implements Sink.
func (t Tee) Send(m Message) {
	for _, s := range t {
		if s != nil {
			s.Send(m)
		}
	}
}

// LogSink mirrors progress into the structured log. Sector progress is
// logged at debug level since it is high volume.
type LogSink struct {
	Logger *zap.Logger
}

// Send implements Sink.
func (l LogSink) Send(m Message) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{zap.String("kind", m.Kind()), zap.Any("payload", m)}
	switch m.(type) {
	case SectorProgress:
		l.Logger.Debug("import progress", fields...)
	case TrackError:
		l.Logger.Warn("import progress", fields...)
	default:
		l.Logger.Info("import progress", fields...)
	}
}

// Discard drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(Message) {}
