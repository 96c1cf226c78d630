/*
Package runtime implements the core of warren: the per-queue consumer
engine, the extraction-based dispatch and the request acknowledgment
lifecycle.

# Architecture Overview

An App collects handler registrations as task factories. Run consumes each
factory once: a dedicated channel is created, prefetch is applied, the queue
is declared and bound, and a consumer is started, yielding one long-lived
consumer task per registered handler.

A consumer task is a three-state machine. While receiving, it waits on
shutdown, sub-task completion and new deliveries, in that priority order.
Every accepted delivery becomes a Request handled in its own goroutine:
parameters are extracted left to right, the handler body runs, the reply is
published if configured, and the delivery is acknowledged. A panicking
sub-task is recovered at its boundary, logged and counted; the abandoned
request is nacked with requeue so the broker redelivers it. On shutdown or
broker-side cancellation the task cancels its consumer, returns its prefetch
credit and drains outstanding sub-tasks before terminating.

# Package Structure

  - app.go: the App registry, startup wiring, shutdown broadcast fan-in
  - task.go: task factories, the consumer task state machine, reply publishing
  - request.go: the Request lifecycle and the at-most-once commit guarantee
  - extract.go: built-in extractors and the Maybe/Try wrappers
  - handler.go: the fixed-arity handler family and responders
  - metrics.go: Prometheus collectors for prefetch capacity and failures

The broker, config, errors, ids and logging subpackages hold the leaf
concerns shared by the files above.
*/
package runtime
