// Package hub implements the TCP client for the sensor hub.
//
// The hub (a Tinkerforge brickd or compatible daemon) aggregates the
// station's bricklets behind one TCP port, 4223 by default. Every sensor
// read is a request/response exchange of small binary packets:
//
//	+---------+--------+----------+-----------------+-------------+---------+
//	| UID (4) | len(1) | func (1) | seq<<4|resp<<3  | err<<6 (1)  | payload |
//	+---------+--------+----------+-----------------+-------------+---------+
//
// All integers are little-endian and packets are at most 80 bytes.
//
// A Client owns a single connection shared by all sensors. Once Connect
// has been called, link loss is handled internally: the client drops to
// StateConnecting and redials with exponential backoff until Disconnect.
//
// Usage:
//
//	client := hub.New(hub.Config{})
//	client.SetLogger(log)
//	if err := client.Connect(ctx, "localhost", hub.DefaultPort); err != nil {
//	    log.Warn("hub not reachable yet", "error", err) // keeps retrying
//	}
//	defer client.Disconnect()
//
//	uid, _ := hub.ParseUID("dXC")
//	payload, err := client.Request(ctx, uid, 1, nil)
package hub
