package testtransport

import (
	"reflect"
	"time"

	"github.com/rs/xid"
)

// Stamp is a piece of metadata attached to an Envelope.
type Stamp any

// Envelope wraps a message with the stamps collected while it travels
// through transports and buses.
type Envelope struct {
	Message any
	Stamps  []Stamp
}

// NewEnvelope wraps msg. When msg already is an Envelope the stamps are
// appended to it instead.
func NewEnvelope(msg any, stamps ...Stamp) Envelope {
	if env, ok := msg.(Envelope); ok {
		return env.With(stamps...)
	}

	return Envelope{Message: msg, Stamps: append([]Stamp(nil), stamps...)}
}

// With returns a copy of the envelope with the stamps appended.
func (e Envelope) With(stamps ...Stamp) Envelope {
	res := make([]Stamp, 0, len(e.Stamps)+len(stamps))
	res = append(res, e.Stamps...)
	res = append(res, stamps...)

	return Envelope{Message: e.Message, Stamps: res}
}

// Without returns a copy of the envelope without the stamps matching fn.
func (e Envelope) Without(fn func(Stamp) bool) Envelope {
	res := make([]Stamp, 0, len(e.Stamps))
	for _, s := range e.Stamps {
		if !fn(s) {
			res = append(res, s)
		}
	}

	return Envelope{Message: e.Message, Stamps: res}
}

// ID returns the delivery identifier assigned by a transport.
func (e Envelope) ID() (xid.ID, bool) {
	s, ok := Last[TransportMessageIDStamp](e)
	return s.ID, ok
}

// Last returns the most recently added stamp of type T.
func Last[T Stamp](e Envelope) (T, bool) {
	for i := len(e.Stamps) - 1; i >= 0; i-- {
		if s, ok := e.Stamps[i].(T); ok {
			return s, true
		}
	}

	return *new(T), false
}

// All returns every stamp of type T in the order they were added.
func All[T Stamp](e Envelope) []T {
	var res []T
	for _, s := range e.Stamps {
		if v, ok := s.(T); ok {
			res = append(res, v)
		}
	}

	return res
}

// MessageName returns the dotted name used to route a message, e.g.
// "orders.PlaceOrder".
func MessageName(msg any) string {
	if env, ok := msg.(Envelope); ok {
		msg = env.Message
	}

	t := reflect.TypeOf(msg)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.String()
}

// DelayStamp asks the transport to hold the envelope for Delay before it
// can be received.
type DelayStamp struct {
	Delay time.Duration
}

// AvailableAtStamp is set by a transport supporting delays.
type AvailableAtStamp struct {
	At time.Time
}

// TransportMessageIDStamp carries the delivery identifier.
type TransportMessageIDStamp struct {
	ID xid.ID
}

// ReceivedStamp marks an envelope as coming from a transport.
type ReceivedStamp struct {
	TransportName string
}

// RedeliveryStamp counts how many times an envelope was retried.
type RedeliveryStamp struct {
	RetryCount    int
	RedeliveredAt time.Time
}

// HandledStamp is added by a bus for every handler that succeeded.
type HandledStamp struct {
	Handler string
	Result  any
}

// ErrorDetailsStamp records a handling failure on the envelope.
type ErrorDetailsStamp struct {
	Type    string
	Message string
}
