package testtransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/rs/xid"
)

// Failure is a handling error recorded against the envelope that caused it.
type Failure struct {
	Envelope  Envelope
	Err       error
	WillRetry bool
}

// Transport is an in-memory stand-in for a broker connection. Sent envelopes
// are captured in a queue and only reach the bus when the test processes
// them, or immediately when the transport does not intercept.
type Transport struct {
	name       string
	opts       Options
	bus        Bus
	events     EventDispatcher
	clock      Clock
	serializer Serializer
	retry      RetryStrategy
	logger     Logger

	handle handleFunc

	mu           sync.Mutex
	queue        []Envelope
	sent         []Envelope
	dispatched   []Envelope
	acknowledged []Envelope
	rejected     []Failure
}

type transportDeps struct {
	bus        Bus
	events     EventDispatcher
	clock      Clock
	serializer Serializer
	retry      RetryStrategy
	logger     Logger
}

func newTransport(name string, opts Options, deps transportDeps) *Transport {
	t := &Transport{
		name:       name,
		opts:       opts,
		bus:        deps.bus,
		events:     deps.events,
		clock:      deps.clock,
		serializer: deps.serializer,
		retry:      deps.retry,
		logger:     log.With(deps.logger, "component", "testTransport", "transport", name),
	}
	t.handle = t.buildHandler()

	return t
}

func (t *Transport) Name() string { return t.name }

// Options returns the resolved configuration.
func (t *Transport) Options() Options { return t.opts }

func (t *Transport) IsIntercepting() bool          { return t.opts.Intercept }
func (t *Transport) IsCatchingExceptions() bool    { return t.opts.CatchExceptions }
func (t *Transport) ShouldTestSerialization() bool { return t.opts.TestSerialization }
func (t *Transport) IsRetriesDisabled() bool       { return t.opts.DisableRetries }
func (t *Transport) SupportsDelayStamp() bool      { return t.opts.SupportDelayStamp }

// Send queues env and returns it stamped with its delivery identifier. When
// the transport does not intercept, the envelope is dispatched to the bus
// before Send returns, followed by every other available envelope, retries
// included. Delayed envelopes stay queued.
func (t *Transport) Send(ctx context.Context, env Envelope) (Envelope, error) {
	if _, ok := Last[DelayStamp](env); ok && !t.opts.SupportDelayStamp {
		return Envelope{}, fmt.Errorf("%w: transport %q, enable %s", ErrDelayStampNotSupported, t.name, OptionSupportDelayStamp)
	}

	queued, err := t.enqueue(ctx, env)
	if err != nil {
		return Envelope{}, err
	}

	if t.opts.Intercept {
		return queued, nil
	}

	id, _ := queued.ID()
	next, ok := t.take(id, true)
	if !ok {
		// delayed, stays queued until the clock catches up
		return queued, nil
	}

	if _, err := t.dispatch(ctx, next); err != nil {
		return queued, err
	}

	_, err = t.ProcessAll(ctx)
	return queued, err
}

// Process dispatches up to n available envelopes in queue order. A negative
// n processes until nothing is available, including retries queued along
// the way. It stops at the first error that is not caught.
func (t *Transport) Process(ctx context.Context, n int) (int, error) {
	processed := 0
	for n < 0 || processed < n {
		env, ok := t.next()
		if !ok {
			break
		}

		processed++
		if _, err := t.dispatch(ctx, env); err != nil {
			return processed, err
		}
	}

	return processed, nil
}

// ProcessAll is Process(ctx, -1).
func (t *Transport) ProcessAll(ctx context.Context) (int, error) {
	return t.Process(ctx, -1)
}

// Dispatch hands one queued envelope to the bus, regardless of its delay.
func (t *Transport) Dispatch(ctx context.Context, env Envelope) (Envelope, error) {
	id, ok := env.ID()
	if !ok {
		return Envelope{}, fmt.Errorf("%w: envelope has no delivery id", ErrEnvelopeNotFound)
	}

	queued, ok := t.take(id, false)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %s", ErrEnvelopeNotFound, id)
	}

	return t.dispatch(ctx, queued)
}

// Queue returns the pending envelopes without removing them.
func (t *Transport) Queue() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Envelope(nil), t.queue...)
}

func (t *Transport) Sent() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Envelope(nil), t.sent...)
}

func (t *Transport) Dispatched() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Envelope(nil), t.dispatched...)
}

func (t *Transport) Acknowledged() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Envelope(nil), t.acknowledged...)
}

func (t *Transport) Rejected() []Failure {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Failure(nil), t.rejected...)
}

// Purge empties the queue. History is kept.
func (t *Transport) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queue = nil
}

// Reset empties the queue and the history.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queue = nil
	t.sent = nil
	t.dispatched = nil
	t.acknowledged = nil
	t.rejected = nil
}

func (t *Transport) enqueue(ctx context.Context, env Envelope) (Envelope, error) {
	env = env.
		Without(func(s Stamp) bool {
			switch s.(type) {
			case TransportMessageIDStamp, AvailableAtStamp:
				return true
			}
			return false
		}).
		With(TransportMessageIDStamp{ID: xid.New()})

	if t.opts.TestSerialization {
		rt, err := t.roundTrip(env)
		if err != nil {
			t.logger.Log("err", err, "message", MessageName(env))
			return Envelope{}, err
		}
		env = rt
	}

	if s, ok := Last[DelayStamp](env); ok && t.opts.SupportDelayStamp && s.Delay > 0 {
		env = env.With(AvailableAtStamp{At: t.clock.Now().Add(s.Delay)})
	}

	t.mu.Lock()
	t.queue = append(t.queue, env)
	t.sent = append(t.sent, env)
	t.mu.Unlock()

	t.events.Dispatch(ctx, MessageSentEvent{Transport: t.name, Envelope: env})
	level.Debug(t.logger).Log("msg", "envelope queued", "message", MessageName(env))

	return env, nil
}

func (t *Transport) roundTrip(env Envelope) (Envelope, error) {
	raw, err := t.serializer.Encode(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode %s: %v", ErrSerialization, MessageName(env), err)
	}

	res, err := t.serializer.Decode(raw)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: decode %s: %v", ErrSerialization, MessageName(env), err)
	}

	return res, nil
}

func (t *Transport) dispatch(ctx context.Context, env Envelope) (Envelope, error) {
	env = env.With(ReceivedStamp{TransportName: t.name})

	t.mu.Lock()
	t.dispatched = append(t.dispatched, env)
	t.mu.Unlock()

	t.events.Dispatch(ctx, MessageReceivedEvent{Transport: t.name, Envelope: env})
	return t.handle(ctx, env)
}

// next removes and returns the first envelope whose delay has elapsed.
func (t *Transport) next() (Envelope, bool) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, env := range t.queue {
		if s, ok := Last[AvailableAtStamp](env); ok && s.At.After(now) {
			continue
		}
		t.queue = append(t.queue[:i:i], t.queue[i+1:]...)
		return env, true
	}

	return Envelope{}, false
}

func (t *Transport) take(id xid.ID, onlyAvailable bool) (Envelope, bool) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, env := range t.queue {
		if envID, ok := env.ID(); !ok || envID != id {
			continue
		}
		if s, ok := Last[AvailableAtStamp](env); onlyAvailable && ok && s.At.After(now) {
			return Envelope{}, false
		}
		t.queue = append(t.queue[:i:i], t.queue[i+1:]...)
		return env, true
	}

	return Envelope{}, false
}
