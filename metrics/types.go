// Package metrics is the thin reporting facade the rest of the server
// calls: counters and gauges addressed by group and name, with optional
// dimensions. The default sink exports through Prometheus; tests swap in a
// recording sink.
package metrics

// Value is a metric sample.
type Value float64

// Dimension attaches contextual labels to a sample, such as the disconnect
// reason or the transport type. A metric must keep the same dimension keys
// across all its samples.
type Dimension map[string]string

// Sink receives every reported sample.
type Sink interface {
	IncrCounter(group, name string, v Value, dims Dimension)
	UpdateGauge(group, name string, v Value, dims Dimension)
}
