package events

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

// DefaultKeepAlive is the idle period after which Pull returns a keep-alive.
const DefaultKeepAlive = 30 * time.Second

// Channel is an ordered, unbounded queue of one session's events. Any number
// of producers may Push; at most one consumer is attached at a time. Events
// pushed while nobody is attached are kept until someone is.
type Channel struct {
	sessionID string

	mu       sync.Mutex
	queue    []Event
	attached bool
	// lastActivity is updated on push and pull for idle eviction.
	lastActivity time.Time

	notify chan struct{}
	now    func() time.Time
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithClock overrides time.Now for activity timestamps.
func WithClock(now func() time.Time) ChannelOption {
	return func(c *Channel) { c.now = now }
}

// NewChannel creates an empty channel for sessionID.
func NewChannel(sessionID string, opts ...ChannelOption) *Channel {
	c := &Channel{
		sessionID: sessionID,
		notify:    make(chan struct{}, 1),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastActivity = c.now()
	return c
}

// Push appends e. It never blocks.
func (c *Channel) Push(e Event) {
	if e.SessionID == "" {
		e.SessionID = c.sessionID
	}

	c.mu.Lock()
	c.queue = append(c.queue, e)
	c.lastActivity = c.now()
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of buffered events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Attached reports whether a consumer is attached.
func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// LastActivity returns when the channel was last pushed to or pulled from.
func (c *Channel) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Attach registers the single consumer. A second concurrent consumer is
// rejected with a conflict error.
func (c *Channel) Attach() (*Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attached {
		return nil, apperr.New(apperr.KindConflict, "events.Attach",
			"session %s already has an active stream", c.sessionID)
	}
	c.attached = true
	c.lastActivity = c.now()
	return &Consumer{ch: c}, nil
}

// Consumer is the attached reader of a Channel.
type Consumer struct {
	ch   *Channel
	once sync.Once
}

// Pull returns the next event. If none arrives within timeout it returns a
// keep-alive event. It returns ctx's error when ctx is done first.
func (s *Consumer) Pull(ctx context.Context, timeout time.Duration) (Event, error) {
	if timeout <= 0 {
		timeout = DefaultKeepAlive
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	c := s.ch
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			e := c.queue[0]
			c.queue[0] = Event{}
			c.queue = c.queue[1:]
			c.lastActivity = c.now()
			c.mu.Unlock()
			return e, nil
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-timer.C:
			return KeepAlive(c.sessionID), nil
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Detach releases the channel for another consumer. Buffered events stay.
func (s *Consumer) Detach() {
	s.once.Do(func() {
		s.ch.mu.Lock()
		s.ch.attached = false
		s.ch.lastActivity = s.ch.now()
		s.ch.mu.Unlock()
	})
}

// Pump pulls events until ctx is done or write fails, passing each one to
// write. A keep-alive is written after every idle period and directly after
// each complete event.
func Pump(ctx context.Context, s *Consumer, keepAlive time.Duration, write func(Event) error) error {
	for {
		e, err := s.Pull(ctx, keepAlive)
		if err != nil {
			return err
		}
		if err := write(e); err != nil {
			return err
		}
		if e.Type == TypeComplete {
			if err := write(KeepAlive(e.SessionID)); err != nil {
				return err
			}
		}
	}
}
