// Package relay fans live samples out to the station's outputs.
//
// The series store notifies subscribers on every append. The relay holds
// one subscription and forwards each update to a list of Sinks: the
// history log writer, the SQLite archive, InfluxDB, MQTT and the WebSocket
// hub. Sinks are isolated from each other; a slow or broken output never
// blocks polling, because the store drops updates for a full subscriber
// rather than waiting.
package relay
