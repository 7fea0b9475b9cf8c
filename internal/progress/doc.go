// Package progress owns the state of the current scrape run and fans run
// lifecycle events out to pluggable sinks.
//
// Tracker is the single-writer run state machine: only the scheduler mutates
// it, and readers receive copies. Hub batches lifecycle events on a background
// goroutine and never blocks emitters.
package progress
