// Package progress provides the event primitives, the non-blocking hub and the
// emitter interface the page loader uses to report per-resource progress. The
// hub delivers events on a background goroutine to pluggable sinks such as
// the console log or Prometheus collectors.
package progress
