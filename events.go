package testtransport

// MessageSentEvent is dispatched once an envelope has been queued.
type MessageSentEvent struct {
	Transport string
	Envelope  Envelope
}

// MessageReceivedEvent is dispatched right before an envelope is handed to
// the bus.
type MessageReceivedEvent struct {
	Transport string
	Envelope  Envelope
}

type MessageHandledEvent struct {
	Transport string
	Envelope  Envelope
}

type MessageFailedEvent struct {
	Transport string
	Envelope  Envelope
	Err       error
	WillRetry bool
}
