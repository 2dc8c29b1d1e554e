// Package api implements the HTTP REST API and WebSocket server of the
// weather station.
//
// This package provides:
//   - Read endpoints for the in-memory series, the archive, hub state and
//     the current display view
//   - A navigation endpoint, optionally guarded by JWT bearer tokens
//   - A WebSocket hub streaming appended samples and view changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
// All routes live under /api/v1:
//
//	GET  /health            liveness plus hub state
//	GET  /hub               hub connection counters
//	GET  /stats             hub, scheduler and sink counters
//	GET  /metrics           every metric with its latest sample
//	GET  /series/{metric}   in-memory series (?since=, ?limit=)
//	GET  /archive/{metric}  archived samples, newest first (?limit=)
//	GET  /view              current display state
//	POST /view/navigate     {"direction":"next"|"prev"}
//	GET  /ws                WebSocket upgrade
//
// # Graceful Degradation
//
// The server runs while the hub is down: reads return whatever the series
// holds and /health reports "degraded". Without an archive, /archive
// answers 503.
package api
