// Package stream fans named events out to long-lived subscribers.
//
// A Broadcaster owns the subscriber set. Each subscription gets an
// immediate heartbeat and then one per interval from a cancellable
// Scheduler task, which keeps idle connections alive through proxies.
// Publishes are serialized so every subscriber sees the same order.
//
// SSEWriter adapts an http.ResponseWriter into a Subscriber speaking the
// text/event-stream wire format; Reader parses that format on the client
// side.
package stream
