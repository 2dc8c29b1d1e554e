// Package metric defines the fixed set of quantities the weather station measures.
//
// A Metric keys everything else in the system: the series it owns in the
// store, the sensor adapter that produces its values and the history file
// that seeds it on startup.
package metric
