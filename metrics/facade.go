package metrics

import "sync"

var (
	sinkMu      sync.RWMutex
	defaultSink Sink = newNopSink()
)

// SetSink installs the process sink. Call once at startup, before traffic.
func SetSink(s Sink) {
	sinkMu.Lock()
	defaultSink = s
	sinkMu.Unlock()
}

func sink() Sink {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return defaultSink
}

// IncrCounterWithGroup adds v to a counter.
func IncrCounterWithGroup(group, name string, v Value) {
	sink().IncrCounter(group, name, v, nil)
}

// IncrCounterWithDimGroup adds v to a counter with dimensions.
func IncrCounterWithDimGroup(group, name string, v Value, dims Dimension) {
	sink().IncrCounter(group, name, v, dims)
}

// UpdateGaugeWithGroup sets a gauge to v.
func UpdateGaugeWithGroup(group, name string, v Value) {
	sink().UpdateGauge(group, name, v, nil)
}

// UpdateGaugeWithDimGroup sets a gauge to v with dimensions.
func UpdateGaugeWithDimGroup(group, name string, v Value, dims Dimension) {
	sink().UpdateGauge(group, name, v, dims)
}

// nopSink drops everything; it is the default until a real sink is set, so
// importing packages never need a nil check.
type nopSink struct{}

func newNopSink() Sink {
	return nopSink{}
}

func (nopSink) IncrCounter(string, string, Value, Dimension) {}
func (nopSink) UpdateGauge(string, string, Value, Dimension) {}
