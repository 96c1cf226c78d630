// Package warren is a framework for RPC-style microservices over AMQP. For
// each registered routing key it declares and binds a queue, consumes
// deliveries, extracts typed handler arguments from each message, and
// publishes the typed response to the caller's reply-to destination,
// correlated by the caller's correlation id.
//
// Handlers are plain functions. Their parameters are declared as
// extractors: decode the payload as protobuf (Msg), project a value from
// the shared application state (State), read the request id (RequestID), or
// take over acknowledgment entirely (TakeAcker). Extraction runs left to
// right and stops at the first failure, which is converted into the
// handler's declared response type so the caller still gets an answer.
//
// A minimal service:
//
//	app := warren.New(&warren.Config{AMQPURL: url, AppName: "echo"}, logger, state, warren.Dependencies{})
//	app.Handler("echo", warren.Handle1(
//		responder,
//		warren.Msg[AppState, *wrapperspb.StringValue](),
//		func(ctx context.Context, msg *wrapperspb.StringValue) *wrapperspb.StringValue {
//			return msg
//		},
//	))
//	err := app.ShutdownOnSignal().Run(ctx)
//
// Each queue is consumed by one long-lived task; each delivery is handled
// concurrently in its own goroutine, bounded by the queue's prefetch. A
// process-wide shutdown broadcast, reachable via ShutdownHandle, drains all
// tasks gracefully: no new deliveries are accepted and outstanding requests
// run to completion. Abandoned requests (for example after a handler panic)
// are nacked with requeue so the broker redelivers them.
package warren
