// Package sinks implements concrete progress consumers backed by structured
// logging and Prometheus. Each sink satisfies the progress.Sink interface.
package sinks
