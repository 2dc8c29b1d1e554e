// Package influxdb is the relay sink that mirrors station samples into an
// InfluxDB v2 bucket.
//
// Each sample becomes one point in the "weather" measurement with metric
// and unit tags, a single "value" field and the sample timestamp at second
// precision. The station ID is attached to every point as a default tag.
//
// Usage:
//
//	sink, err := influxdb.Connect(cfg.InfluxDB, cfg.Station.ID)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//	sink.SetOnError(func(err error) { log.Warn("influxdb batch rejected", "error", err) })
//
//	relay.New(store, log, sink)
package influxdb
