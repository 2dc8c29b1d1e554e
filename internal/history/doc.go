// Package history reads and writes the per-metric sample logs.
//
// Each metric has its own log of "epoch-seconds<TAB>value" lines. On startup
// the Loader decodes every configured log and seeds the series store before
// polling begins. Bad input is never fatal: a malformed line is logged and
// skipped, and a missing file skips that metric.
//
// The Writer is the other half: it appends live samples to the same logs.
//
// Usage:
//
//	report := history.NewLoader(log).Load(paths, store)
//	log.Info("history seeded", "missing", report.Missing)
package history
