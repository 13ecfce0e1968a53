package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	testtransport "github.com/nrfta/go-testtransport"
)

var ErrNoHandler = errors.New("no handler for message")

// Handler handles one message. The returned value is kept on the envelope
// in a HandledStamp.
type Handler func(ctx context.Context, msg any) (any, error)

type route struct {
	pattern string
	name    string
	handler Handler
}

// SyncBus implements testtransport.Bus by calling matching handlers in
// registration order.
type SyncBus struct {
	mu              sync.RWMutex
	routes          []route
	allowNoHandlers bool
	logger          log.Logger
}

type option func(b *SyncBus)

func WithLogger(logger log.Logger) option {
	return func(b *SyncBus) {
		b.logger = logger
	}
}

// AllowNoHandlers makes dispatching a message nobody handles a no-op instead
// of an ErrNoHandler.
func AllowNoHandlers() option {
	return func(b *SyncBus) {
		b.allowNoHandlers = true
	}
}

func New(opts ...option) *SyncBus {
	b := &SyncBus{
		logger: log.NewNopLogger(),
	}

	for _, o := range opts {
		o(b)
	}

	b.logger = log.With(b.logger, "component", "syncBus")

	return b
}

// Handle registers h under name for messages matching pattern.
func (b *SyncBus) Handle(pattern, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.routes = append(b.routes, route{pattern: pattern, name: name, handler: h})
}

// Dispatch runs every matching handler, even after one failed, and joins
// their errors.
func (b *SyncBus) Dispatch(ctx context.Context, env testtransport.Envelope) (testtransport.Envelope, error) {
	subject := testtransport.MessageName(env)

	routes := b.match(subject)
	if len(routes) == 0 {
		if b.allowNoHandlers {
			return env, nil
		}
		return env, fmt.Errorf("%w: %s", ErrNoHandler, subject)
	}

	var errs []error
	for _, r := range routes {
		res, err := r.handler(ctx, env.Message)
		if err != nil {
			level.Debug(b.logger).Log("msg", "handler failed", "handler", r.name, "message", subject, "err", err)
			errs = append(errs, fmt.Errorf("handler %s: %w", r.name, err))
			continue
		}

		env = env.With(testtransport.HandledStamp{Handler: r.name, Result: res})
	}

	return env, errors.Join(errs...)
}

func (b *SyncBus) match(subject string) []route {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var res []route
	for _, r := range b.routes {
		if matchesSubject(r.pattern, subject) {
			res = append(res, r)
		}
	}

	return res
}

func matchesSubject(pattern, subject string) bool {
	var (
		parts    = strings.Split(pattern, ".")
		msgParts = strings.Split(subject, ".")
	)

	for i := range parts {
		if parts[i] == ">" {
			return i < len(msgParts)
		}
		if i >= len(msgParts) {
			return false
		}
		if parts[i] != "*" && parts[i] != msgParts[i] {
			return false
		}
	}

	return len(parts) == len(msgParts)
}

var _ testtransport.Bus = (*SyncBus)(nil)
