// Package stream opens one server-push subscription per generation attempt
// and turns its frames into typed events. It does not retry anything.
package stream

import (
	"context"
	"sync"

	"aistudio/internal/domain"
)

// Channel is a single open subscription. Events yields Progress and Log
// events followed by exactly one Done or Error, or TransportError events
// when the connection drops. The events channel is closed once the stream
// ends or Close is called.
type Channel interface {
	Events() <-chan domain.StreamEvent
	// Close is idempotent and safe to call after a terminal event.
	Close() error
}

// Opener establishes a channel for one request. A non-nil error means no
// channel exists; callers treat it like a transport failure.
type Opener interface {
	Open(ctx context.Context, req domain.GenerationRequest) (Channel, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, req domain.GenerationRequest) (Channel, error)

func (f OpenerFunc) Open(ctx context.Context, req domain.GenerationRequest) (Channel, error) {
	return f(ctx, req)
}

// pump owns the events channel of a subscription. The producer goroutine
// calls send and finish; consumers call Close.
type pump struct {
	events    chan domain.StreamEvent
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newPump(buffer int, onClose func()) *pump {
	if buffer <= 0 {
		buffer = 64
	}
	return &pump{
		events:  make(chan domain.StreamEvent, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (p *pump) Events() <-chan domain.StreamEvent {
	return p.events
}

func (p *pump) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

// send delivers ev unless the channel was closed. It reports false once the
// consumer is gone so the producer can stop reading.
func (p *pump) send(ev domain.StreamEvent) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

func (p *pump) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// finish is called exactly once by the producer when it stops.
func (p *pump) finish() {
	close(p.events)
}
