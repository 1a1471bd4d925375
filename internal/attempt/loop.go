// Package attempt drives one image to a terminal outcome: it opens a stream
// per attempt, waits for the result, and on failure classifies the error,
// degrades the request and tries again within the attempt budget.
package attempt

import (
	"context"
	"fmt"
	"time"

	"aistudio/internal/domain"
	"aistudio/internal/infra"
	"aistudio/internal/metrics"
	"aistudio/internal/recovery"
	"aistudio/internal/stream"
)

const (
	DefaultRetryDelay = 1000 * time.Millisecond
	DefaultTimeout    = 300 * time.Second

	msgTimedOut     = "Attempt timed out"
	msgStreamClosed = "Stream closed before completion"
)

// Hooks receive attempt activity. Every field is optional.
type Hooks struct {
	// AttemptStarted fires before each Open with the payload about to be sent.
	AttemptStarted func(attempt int, req domain.GenerationRequest)
	Progress       func(value int)
	Log            func(line string)
}

type Options struct {
	// RetryDelay is the pause before the next attempt. Zero selects the
	// default; a negative value retries immediately.
	RetryDelay time.Duration
	// Timeout bounds a single attempt from open to terminal event.
	Timeout time.Duration
	Logger     *infra.Logger
	Hooks      Hooks
}

// Loop runs attempts against an Opener. It holds no per-image state, so a
// single Loop may serve consecutive images.
type Loop struct {
	opener     stream.Opener
	retryDelay time.Duration
	timeout    time.Duration
	logger     *infra.Logger
	hooks      Hooks
}

func New(opener stream.Opener, opts Options) *Loop {
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Loop{
		opener:     opener,
		retryDelay: opts.RetryDelay,
		timeout:    opts.Timeout,
		logger:     infra.Component(opts.Logger, "attempt"),
		hooks:      opts.Hooks,
	}
}

// result is what a single attempt produced.
type result struct {
	path    string
	ok      bool
	failure domain.Failure
	openErr error
}

// Run attempts initial until it succeeds, fails non-retryably, exhausts the
// budget, or ctx is cancelled. The returned outcome is always terminal.
// initial is normalized first, so every payload sent respects the floors.
func (l *Loop) Run(ctx context.Context, initial domain.GenerationRequest, budget domain.AttemptBudget) domain.AttemptOutcome {
	initial = initial.Normalize()
	req := initial
	attempt := 0
	for {
		attempt++
		l.attemptStarted(attempt, req)
		l.infof("attempt %d/%s for %s: %dx%d, %d steps, device %s, precision %s",
			attempt, budget, req.Filename, req.Width, req.Height, req.Steps, req.Device, req.Precision)

		res := l.once(ctx, req)
		if res.ok {
			l.infof("%s finished after %d attempt(s): %s", req.Filename, attempt, res.path)
			return finish(domain.Succeeded(res.path), initial.Filename, attempt)
		}
		if err := ctx.Err(); err != nil {
			l.errorf("%s abandoned on attempt %d: %v", req.Filename, attempt, err)
			return finish(domain.Failed("cancelled: "+err.Error()), initial.Filename, attempt)
		}

		if res.openErr != nil {
			msg := res.openErr.Error()
			l.warnf("attempt %d could not open stream: %s", attempt, msg)
			if budget.Exhausted(attempt) {
				l.errorf("%s failed: attempt budget %s exhausted", req.Filename, budget)
				return finish(domain.Failed(msg), initial.Filename, attempt)
			}
			l.infof("retrying same payload in %s", l.retryDelay)
			if !Wait(ctx, l.retryDelay) {
				return finish(domain.Failed("cancelled: "+ctx.Err().Error()), initial.Filename, attempt)
			}
			continue
		}

		msg := res.failure.Message()
		class := recovery.Classify(res.failure)
		metrics.RecordClassification(class.String())
		l.warnf("attempt %d failed (%s): %s", attempt, class, msg)

		if !class.Retryable() {
			l.errorf("%s failed: error is not retryable", req.Filename)
			return finish(domain.Failed(msg), initial.Filename, attempt)
		}
		if budget.Exhausted(attempt) {
			l.errorf("%s failed: attempt budget %s exhausted", req.Filename, budget)
			return finish(domain.Failed(msg), initial.Filename, attempt)
		}

		next := recovery.Mutate(req, class)
		metrics.RecordMutation(class.String())
		l.infof("degrading payload: %s", recovery.DescribeChange(req, next))
		req = next

		l.infof("retrying in %s", l.retryDelay)
		if !Wait(ctx, l.retryDelay) {
			return finish(domain.Failed("cancelled: "+ctx.Err().Error()), initial.Filename, attempt)
		}
	}
}

// once runs a single attempt. The channel is always closed before return.
func (l *Loop) once(ctx context.Context, req domain.GenerationRequest) result {
	started := time.Now()
	ch, err := l.opener.Open(ctx, req)
	if err != nil {
		metrics.RecordAttempt("open_failed", time.Since(started).Seconds())
		return result{openErr: err}
	}
	defer ch.Close()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			metrics.RecordAttempt("cancelled", time.Since(started).Seconds())
			return result{failure: domain.Failure{Kind: domain.FailureKindGeneric, Text: ctx.Err().Error()}}

		case <-timer.C:
			metrics.RecordAttempt("timed_out", time.Since(started).Seconds())
			return result{failure: domain.Failure{Kind: domain.FailureKindGeneric, Text: msgTimedOut}}

		case ev, ok := <-ch.Events():
			if !ok {
				metrics.RecordAttempt("failed", time.Since(started).Seconds())
				return result{failure: domain.Failure{Kind: domain.FailureKindGeneric, Text: msgStreamClosed}}
			}
			switch ev.Type {
			case domain.EventProgress:
				if l.hooks.Progress != nil {
					l.hooks.Progress(ev.Value)
				}
			case domain.EventLog:
				l.emit(ev.Text)
			case domain.EventTransportError:
				l.warnf("stream transport error: %v", ev.Err)
			case domain.EventDone:
				metrics.RecordAttempt("succeeded", time.Since(started).Seconds())
				return result{ok: true, path: ev.Path}
			case domain.EventError:
				metrics.RecordAttempt("failed", time.Since(started).Seconds())
				return result{failure: domain.Failure{Kind: ev.Kind, Text: ev.Text, Trace: ev.Trace}}
			}
		}
	}
}

// Wait sleeps for d or until ctx is done. It reports whether the full delay
// elapsed.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func finish(o domain.AttemptOutcome, filename string, attempts int) domain.AttemptOutcome {
	o.Filename = filename
	o.Attempts = attempts
	return o
}

func (l *Loop) attemptStarted(n int, req domain.GenerationRequest) {
	if l.hooks.AttemptStarted != nil {
		l.hooks.AttemptStarted(n, req)
	}
}

func (l *Loop) emit(line string) {
	if l.hooks.Log != nil {
		l.hooks.Log(line)
	}
}

func (l *Loop) infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Info().Msg("attempt: " + msg)
	l.emit("[INFO] " + msg)
}

func (l *Loop) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Warn().Msg("attempt: " + msg)
	l.emit("[WARN] " + msg)
}

func (l *Loop) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error().Msg("attempt: " + msg)
	l.emit("[ERROR] " + msg)
}
