package testtransport

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log/level"
)

type handleFunc func(ctx context.Context, env Envelope) (Envelope, error)

// buildHandler composes the handling path once, at construction, from the
// resolved options:
//
//	bus -> retry (unless disable_retries) -> record outcome -> catch (if catch_exceptions)
func (t *Transport) buildHandler() handleFunc {
	h := handleFunc(t.bus.Dispatch)
	if !t.opts.DisableRetries {
		h = t.retryFailures(h)
	}
	h = t.recordOutcome(h)
	if t.opts.CatchExceptions {
		h = t.catchErrors(h)
	}

	return h
}

// scheduledRetry is returned by retryFailures once the envelope has been
// queued again. recordOutcome unwraps it.
type scheduledRetry struct {
	err error
}

func (e *scheduledRetry) Error() string { return e.err.Error() }
func (e *scheduledRetry) Unwrap() error { return e.err }

func (t *Transport) retryFailures(next handleFunc) handleFunc {
	return func(ctx context.Context, env Envelope) (Envelope, error) {
		res, err := next(ctx, env)
		if err == nil {
			return res, nil
		}

		attempt := 0
		if s, ok := Last[RedeliveryStamp](env); ok {
			attempt = s.RetryCount
		}

		retry, delay := t.retry.ShouldRetry(attempt, err)
		if !retry {
			return res, err
		}

		redelivery := env.
			Without(notRedelivered).
			With(RedeliveryStamp{RetryCount: attempt + 1, RedeliveredAt: t.clock.Now()})
		if t.opts.SupportDelayStamp && delay > 0 {
			redelivery = redelivery.With(DelayStamp{Delay: delay})
		}

		if _, qerr := t.enqueue(ctx, redelivery); qerr != nil {
			return res, errors.Join(err, qerr)
		}

		level.Debug(t.logger).Log("msg", "retry scheduled", "message", MessageName(env), "attempt", attempt+1, "delay", delay)
		return res, &scheduledRetry{err: err}
	}
}

func (t *Transport) recordOutcome(next handleFunc) handleFunc {
	return func(ctx context.Context, env Envelope) (Envelope, error) {
		res, err := next(ctx, env)
		if err == nil {
			t.mu.Lock()
			t.acknowledged = append(t.acknowledged, res)
			t.mu.Unlock()

			t.events.Dispatch(ctx, MessageHandledEvent{Transport: t.name, Envelope: res})
			return res, nil
		}

		var (
			scheduled *scheduledRetry
			willRetry = errors.As(err, &scheduled)
		)
		if willRetry {
			err = scheduled.err
		}

		failed := env.With(ErrorDetailsStamp{Type: fmt.Sprintf("%T", err), Message: err.Error()})

		t.mu.Lock()
		t.rejected = append(t.rejected, Failure{Envelope: failed, Err: err, WillRetry: willRetry})
		t.mu.Unlock()

		t.events.Dispatch(ctx, MessageFailedEvent{Transport: t.name, Envelope: failed, Err: err, WillRetry: willRetry})
		return failed, err
	}
}

// catchErrors swallows handling errors. Serialization failures always reach
// the caller.
func (t *Transport) catchErrors(next handleFunc) handleFunc {
	return func(ctx context.Context, env Envelope) (Envelope, error) {
		res, err := next(ctx, env)
		if err == nil || errors.Is(err, ErrSerialization) {
			return res, err
		}

		level.Debug(t.logger).Log("msg", "caught handling error", "message", MessageName(env), "err", err)
		return res, nil
	}
}

func notRedelivered(s Stamp) bool {
	switch s.(type) {
	case DelayStamp, ReceivedStamp, HandledStamp:
		return true
	}

	return false
}
