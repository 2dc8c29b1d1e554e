// Package logging provides structured logging for the weather station.
//
// It wraps log/slog. JSON output is meant for production; text output
// goes through tint for readable, coloured development logs. Every entry
// carries service and version fields.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	hub.SetLogger(logger.With("component", "hub"))
//
// Never log secrets such as the MQTT password or the InfluxDB token.
package logging
