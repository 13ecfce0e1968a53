package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	testtransport "github.com/nrfta/go-testtransport"
	"github.com/nrfta/go-testtransport/mb"
)

// Producer is the part of *kgo.Client used by the bus.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type kafkaBus struct {
	client     Producer
	serializer testtransport.Serializer
	topic      mb.SubjectFunc
}

// New returns a Bus producing every dispatched envelope to Kafka. The
// envelope's delivery id is used as the record key.
func New(client Producer, serializer testtransport.Serializer, topic mb.SubjectFunc) (testtransport.Bus, error) {
	if client == nil {
		return nil, fmt.Errorf("kafka bus: nil client")
	}
	if serializer == nil {
		serializer = testtransport.GobSerializer{}
	}
	if topic == nil {
		topic = mb.PrefixedSubject("testtransport")
	}

	return &kafkaBus{client, serializer, topic}, nil
}

func (b kafkaBus) Dispatch(ctx context.Context, env testtransport.Envelope) (testtransport.Envelope, error) {
	value, err := b.serializer.Encode(env)
	if err != nil {
		return env, fmt.Errorf("unable to encode message: %v", err)
	}

	record := &kgo.Record{
		Value: value,
		Topic: b.topic(env),
	}
	if id, ok := env.ID(); ok {
		record.Key = id.Bytes()
		record.Timestamp = id.Time()
	}
	for _, h := range mb.Headers(env) {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: h.Key, Value: []byte(h.Value)})
	}

	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return env, fmt.Errorf("record had a produce error while synchronously producing: %v", err)
	}

	return env.With(testtransport.HandledStamp{Handler: "kafka:" + record.Topic}), nil
}
