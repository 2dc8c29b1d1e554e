// Package series holds the bounded in-memory time series for each metric.
//
// The store is written by the historical loader (once, at startup) and by
// the polling scheduler (continuously), and read at any time by the
// presentation layer. Each series is a fixed-capacity ring: when it is full
// the oldest sample is evicted, so memory stays bounded over unbounded uptime.
//
// Usage:
//
//	store := series.NewStore(cfg.Series.Capacity)
//	store.Seed(metric.Temperature, history)
//	store.Append(metric.Temperature, series.Sample{Time: now, Value: 21.5})
//	points := store.Snapshot(metric.Temperature)
//
// Live appends are also published to subscribers (see Subscribe), which is
// how sinks and WebSocket clients learn about new samples.
package series
