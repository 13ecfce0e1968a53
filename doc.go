// Package testtransport provides an in-memory message transport for testing
// applications that dispatch messages asynchronously.
//
// Instead of sending to a broker, a Transport captures envelopes in a queue so
// tests can assert on what was sent, process them synchronously through the
// wrapped Bus, and simulate delayed delivery without any infrastructure.
//
// # Configuration
//
// Transports are created by a Factory from a DSN using the "test" scheme and
// an options map. Five flags control the behavior:
//
//	intercept           (true)  keep envelopes queued until the test processes them
//	catch_exceptions    (true)  record handling errors instead of returning them
//	test_serialization  (true)  round trip every envelope through the Serializer
//	disable_retries     (true)  never queue a failed envelope again
//	support_delay_stamp (false) honor DelayStamp using the Clock
//
// A flag set in the options map wins over the DSN query, which wins over the
// default:
//
//	factory := testtransport.NewFactory(bus, nil, nil)
//	async, err := factory.CreateTransport("test://?intercept=false", map[string]any{
//	    "transport_name":   "async",
//	    "catch_exceptions": false,
//	}, nil)
//
// # Isolation
//
// Transports are kept in the factory's Registry. Call Registry().ResetAll()
// between test cases so no envelope leaks from one case to the next.
//
// The queue is guarded by a mutex but a Transport is meant to be driven by a
// single test at a time; interleaving Process calls from several goroutines
// makes the dispatch order undefined.
package testtransport
