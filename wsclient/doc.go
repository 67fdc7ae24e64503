// Package wsclient provides a reconnecting WebSocket client that feeds
// inbound messages and connection lifecycle events to subscribers.
//
// The primary lifecycle is:
//   - describe the endpoint with an EndpointConfig
//   - construct a Client with NewClient
//   - Subscribe handlers for Connected, Disconnected, Message and GaveUp events
//   - Start connecting and Send while the connection is open
//   - Stop when finished
//
// A failed connection is retried after a fixed delay while the configured
// attempt budget lasts; a MaxAttempts of zero with Reconnect enabled retries
// without limit. The retry counter resets whenever a connection opens and on
// every explicit Start. When the budget is exhausted subscribers receive a
// GaveUp event and the client stays Closed until Start is called again.
//
// Handlers run one at a time on a dispatch goroutine, in the order events
// were produced. They may call Send, Start and Stop. A handler that returns
// an error or panics is reported as a HandlerError through the error handler
// set with WithErrorHandler; the remaining handlers still receive the event.
//
// Clients share no mutable state, so several may run side by side.
package wsclient
