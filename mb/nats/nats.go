package mbNats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	testtransport "github.com/nrfta/go-testtransport"
	"github.com/nrfta/go-testtransport/mb"
)

// Publisher is the part of *nats.Conn used by the bus.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// JetStreamPublisher is the part of jetstream.JetStream used by the bus.
type JetStreamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type natsJetstreamBus struct {
	js         JetStreamPublisher
	serializer testtransport.Serializer
	subject    mb.SubjectFunc
}

// NewJetstream returns a Bus forwarding every dispatched envelope to
// JetStream. It lets a non intercepting test transport feed a real stream.
func NewJetstream(js JetStreamPublisher, serializer testtransport.Serializer, subject mb.SubjectFunc) (testtransport.Bus, error) {
	if js == nil {
		return nil, fmt.Errorf("nats jetstream bus: nil jetstream")
	}

	return &natsJetstreamBus{js, defaultSerializer(serializer), defaultSubject(subject)}, nil
}

func (b natsJetstreamBus) Dispatch(ctx context.Context, env testtransport.Envelope) (testtransport.Envelope, error) {
	msg, err := toMsg(env, b.serializer, b.subject)
	if err != nil {
		return env, err
	}

	ack, err := b.js.PublishMsg(ctx, msg)
	if err != nil {
		return env, fmt.Errorf("nats jetstream publish message: %v", err)
	}

	return env.With(testtransport.HandledStamp{Handler: "nats-jetstream:" + msg.Subject, Result: ack}), nil
}

type natsBus struct {
	client     Publisher
	serializer testtransport.Serializer
	subject    mb.SubjectFunc
}

// New returns a Bus publishing every dispatched envelope on a core NATS
// connection.
func New(client Publisher, serializer testtransport.Serializer, subject mb.SubjectFunc) (testtransport.Bus, error) {
	if client == nil {
		return nil, fmt.Errorf("nats bus: nil connection")
	}

	return &natsBus{client, defaultSerializer(serializer), defaultSubject(subject)}, nil
}

func (b natsBus) Dispatch(ctx context.Context, env testtransport.Envelope) (testtransport.Envelope, error) {
	msg, err := toMsg(env, b.serializer, b.subject)
	if err != nil {
		return env, err
	}

	if err := b.client.PublishMsg(msg); err != nil {
		return env, fmt.Errorf("nats publish message: %v", err)
	}

	return env.With(testtransport.HandledStamp{Handler: "nats:" + msg.Subject}), nil
}

func toMsg(env testtransport.Envelope, s testtransport.Serializer, subject mb.SubjectFunc) (*nats.Msg, error) {
	data, err := s.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("unable to encode message: %v", err)
	}

	msg := nats.NewMsg(subject(env))
	msg.Data = data
	for _, h := range mb.Headers(env) {
		msg.Header.Set(h.Key, h.Value)
	}

	return msg, nil
}

func defaultSerializer(s testtransport.Serializer) testtransport.Serializer {
	if s == nil {
		return testtransport.GobSerializer{}
	}
	return s
}

func defaultSubject(fn mb.SubjectFunc) mb.SubjectFunc {
	if fn == nil {
		return mb.PrefixedSubject("testtransport")
	}
	return fn
}
