// Package bus provides SyncBus, a synchronous in-process message bus to wrap
// with a test transport.
//
// Handlers are registered against a message name pattern and run in the
// caller's goroutine when an envelope is dispatched, so a test sees every side
// effect as soon as Process (or Send on a non intercepting transport)
// returns.
//
//	b := bus.New()
//	b.Handle("orders.PlaceOrder", "reserveStock", func(ctx context.Context, msg any) (any, error) {
//	    return nil, stock.Reserve(msg.(orders.PlaceOrder))
//	})
//
//	factory := testtransport.NewFactory(b, nil, nil)
//
// Message names are "<package>.<Type>" as returned by testtransport.MessageName.
// In patterns "*" matches exactly one segment and ">" matches all remaining
// segments.
package bus
