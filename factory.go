package testtransport

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// DefaultTransportName is used when the options map has no transport_name.
const DefaultTransportName = "test"

// Factory creates test transports for DSNs using the "test" scheme and
// registers them by name.
type Factory struct {
	bus      Bus
	events   EventDispatcher
	clock    Clock
	registry *Registry
	retry    RetryStrategy
	base     Logger
	logger   Logger
}

type option func(f *Factory)

func WithLogger(logger Logger) option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithRegistry shares a registry between factories.
func WithRegistry(r *Registry) option {
	return func(f *Factory) {
		f.registry = r
	}
}

func WithRetryStrategy(s RetryStrategy) option {
	return func(f *Factory) {
		f.retry = s
	}
}

// NewFactory returns a factory dispatching to bus. A nil bus acknowledges
// every envelope without handling it, a nil events dispatcher drops events
// and a nil clock uses the system time.
func NewFactory(bus Bus, events EventDispatcher, clock Clock, opts ...option) *Factory {
	f := &Factory{
		bus:      bus,
		events:   events,
		clock:    clock,
		registry: NewRegistry(),
		retry:    DefaultRetryStrategy(),
		logger:   defaultLogger(),
	}

	if f.bus == nil {
		f.bus = ackBus{}
	}
	if f.events == nil {
		f.events = nopEventDispatcher{}
	}
	if f.clock == nil {
		f.clock = systemClock{}
	}

	for _, o := range opts {
		o(f)
	}

	f.base = f.logger
	f.logger = log.With(
		f.logger,
		"component", "testTransportFactory",
		"bus", reflect.TypeOf(f.bus),
	)

	return f
}

func (f *Factory) Registry() *Registry {
	return f.registry
}

// Supports reports whether dsn uses the test scheme. Query parameters and
// options are not looked at.
func (f *Factory) Supports(dsn string, options map[string]any) bool {
	return SchemeOf(dsn) == Scheme
}

// CreateTransport resolves dsn and options and returns the transport named
// by the transport_name option. An already registered transport is
// returned as is when its options match, otherwise ErrTransportConflict is
// returned. A nil serializer uses GobSerializer. The serializer only applies
// to new transports: an existing transport keeps the one it was created
// with.
func (f *Factory) CreateTransport(dsn string, options map[string]any, serializer Serializer) (*Transport, error) {
	if !f.Supports(dsn, options) {
		return nil, fmt.Errorf("%w: scheme %q is not %q", ErrInvalidDSN, SchemeOf(dsn), Scheme)
	}

	name, err := transportName(options)
	if err != nil {
		return nil, err
	}

	opts, err := ResolveOptions(dsn, options)
	if err != nil {
		f.logger.Log("err", fmt.Errorf("unable to resolve options for %s: %v", name, err))
		return nil, err
	}

	if existing, err := f.registry.Get(name); err == nil {
		if existing.Options() != opts {
			return nil, fmt.Errorf("%w: %q", ErrTransportConflict, name)
		}
		return existing, nil
	} else if !errors.Is(err, ErrTransportNotFound) {
		return nil, err
	}

	if serializer == nil {
		serializer = GobSerializer{}
	}

	t := newTransport(name, opts, transportDeps{
		bus:        f.bus,
		events:     f.events,
		clock:      f.clock,
		serializer: serializer,
		retry:      f.retry,
		logger:     f.base,
	})
	if err := f.registry.Register(t); err != nil {
		return nil, err
	}

	level.Debug(f.logger).Log("msg", "transport created", "transport", name, "options", fmt.Sprintf("%+v", opts))
	return t, nil
}

func transportName(options map[string]any) (string, error) {
	raw, ok := options[OptionTransportName]
	if !ok {
		return DefaultTransportName, nil
	}

	name, ok := raw.(string)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string, got %v", ErrInvalidOption, OptionTransportName, raw)
	}

	return name, nil
}
