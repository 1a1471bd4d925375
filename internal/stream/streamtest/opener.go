// Package streamtest provides a scripted stream.Opener for tests of code
// that drives generation attempts.
package streamtest

import (
	"context"
	"sync"

	"aistudio/internal/domain"
	"aistudio/internal/stream"
)

// Script describes what one Open call produces.
type Script struct {
	// OpenErr makes Open fail without a channel.
	OpenErr error
	// Events are delivered in order.
	Events []domain.StreamEvent
	// Hold keeps the channel open after Events until Close is called.
	Hold bool
}

// Done scripts a successful attempt.
func Done(path string, progress ...int) Script {
	var evs []domain.StreamEvent
	for _, p := range progress {
		evs = append(evs, domain.ProgressEvent(p))
	}
	return Script{Events: append(evs, domain.DoneEvent(path))}
}

// Fail scripts an attempt ending with a server error.
func Fail(text, trace string) Script {
	return Script{Events: []domain.StreamEvent{domain.ErrorEvent(text, trace, domain.FailureKindUnknown)}}
}

// Hang scripts an attempt that never reaches a terminal event.
func Hang(events ...domain.StreamEvent) Script {
	return Script{Events: events, Hold: true}
}

// Opener replays scripts in order; once they run out the last one repeats.
type Opener struct {
	mu       sync.Mutex
	scripts  []Script
	requests []domain.GenerationRequest
	channels []*Channel
}

func NewOpener(scripts ...Script) *Opener {
	return &Opener{scripts: scripts}
}

func (o *Opener) Open(_ context.Context, req domain.GenerationRequest) (stream.Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, req)
	var s Script
	if len(o.scripts) > 0 {
		i := min(len(o.requests)-1, len(o.scripts)-1)
		s = o.scripts[i]
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	ch := newChannel(s)
	o.channels = append(o.channels, ch)
	return ch, nil
}

// Requests returns every payload passed to Open, in call order.
func (o *Opener) Requests() []domain.GenerationRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.GenerationRequest(nil), o.requests...)
}

// Channels returns the channels handed out so far.
func (o *Opener) Channels() []*Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Channel(nil), o.channels...)
}

// Channel is a scripted stream.Channel that records Close calls.
type Channel struct {
	events chan domain.StreamEvent
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closes int
}

func newChannel(s Script) *Channel {
	c := &Channel{
		events: make(chan domain.StreamEvent, len(s.Events)),
		done:   make(chan struct{}),
	}
	for _, ev := range s.Events {
		c.events <- ev
	}
	if s.Hold {
		go func() {
			<-c.done
			close(c.events)
		}()
	} else {
		close(c.events)
	}
	return c
}

func (c *Channel) Events() <-chan domain.StreamEvent {
	return c.events
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

// Closes reports how many times Close was called.
func (c *Channel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

var _ stream.Opener = (*Opener)(nil)
