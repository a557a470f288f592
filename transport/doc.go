// Package transport implements the reactive transport over WebSocket.
//
// A Client holds one connection to a deployment's sync endpoint and
// multiplexes all query subscriptions over it. Connection loss triggers
// reconnection with backoff; live subscriptions are replayed after each
// redial so the server resumes pushing without caller involvement.
package transport
