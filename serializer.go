package testtransport

import (
	"bytes"
	"encoding/gob"
)

func init() {
	gob.Register(DelayStamp{})
	gob.Register(AvailableAtStamp{})
	gob.Register(TransportMessageIDStamp{})
	gob.Register(RedeliveryStamp{})
	gob.Register(ErrorDetailsStamp{})
}

// RegisterMessage makes a message type known to GobSerializer. Sending an
// unregistered type with serialization testing enabled fails, the same way
// it would against a real broker.
func RegisterMessage(msg any) {
	gob.Register(msg)
}

// GobSerializer is the default Serializer. Stamps that only make sense
// inside the process (ReceivedStamp, HandledStamp) are not encoded.
type GobSerializer struct{}

func (GobSerializer) Encode(env Envelope) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(env.Without(nonSendable)); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (GobSerializer) Decode(raw []byte) (Envelope, error) {
	var (
		res Envelope
		r   = bytes.NewReader(raw)
	)
	if err := gob.NewDecoder(r).Decode(&res); err != nil {
		return Envelope{}, err
	}

	return res, nil
}

func nonSendable(s Stamp) bool {
	switch s.(type) {
	case ReceivedStamp, HandledStamp:
		return true
	}

	return false
}
