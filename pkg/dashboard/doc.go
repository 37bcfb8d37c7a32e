// Package dashboard serves the live view of workflow runs: a websocket event
// stream, the pending approval queue, Prometheus metrics and a health check.
package dashboard
