package testtransport

//go:generate go run go.uber.org/mock/mockgen --source=testtransport.go --destination=mock_testtransport_test.go -package=testtransport Bus,EventDispatcher,Clock,Serializer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	ErrInvalidDSN             = errors.New("invalid dsn")
	ErrInvalidOption          = errors.New("invalid option")
	ErrDelayStampNotSupported = errors.New("delay stamp not supported")
	ErrSerialization          = errors.New("serialization round trip failed")
	ErrEnvelopeNotFound       = errors.New("envelope not found in queue")
	ErrTransportNotFound      = errors.New("transport not found")
	ErrTransportConflict      = errors.New("transport already registered with different options")
)

type Logger interface {
	log.Logger
}

// Bus executes the handlers registered for a message synchronously.
type Bus interface {
	Dispatch(ctx context.Context, env Envelope) (Envelope, error)
}

// BusFunc adapts a function to the Bus interface.
type BusFunc func(ctx context.Context, env Envelope) (Envelope, error)

func (f BusFunc) Dispatch(ctx context.Context, env Envelope) (Envelope, error) {
	return f(ctx, env)
}

// EventDispatcher is notified of transport lifecycle events. It is fire
// and forget: nothing it does can change the outcome of an operation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event any)
}

type Clock interface {
	Now() time.Time
}

// Serializer encodes envelopes the way a real broker transport would.
type Serializer interface {
	Encode(env Envelope) ([]byte, error)
	Decode(raw []byte) (Envelope, error)
}

// IsConfigurationError reports whether err is caused by a malformed DSN, an
// invalid option value or a stamp the transport is not configured for.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidDSN) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrDelayStampNotSupported)
}

// UnrecoverableError marks a handling failure that must never be retried.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// Unrecoverable wraps err so that retry strategies skip it.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}

	return &UnrecoverableError{Err: err}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// ackBus acknowledges every envelope without handling it.
type ackBus struct{}

func (ackBus) Dispatch(_ context.Context, env Envelope) (Envelope, error) {
	return env, nil
}

type nopEventDispatcher struct{}

func (nopEventDispatcher) Dispatch(context.Context, any) {}

func defaultLogger() Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return level.NewFilter(logger, level.AllowWarn())
}
