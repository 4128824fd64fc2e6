// Package jobstore persists job history in SQLite.
//
// The Store records every submitted top-level job, throttled progress
// updates, and the final state. It implements workflow.Recorder and backs
// the history view of the CLI.
//
// The database is a record of past work rather than the source of truth for
// scheduling: in-flight jobs live in memory and are marked interrupted when
// the daemon restarts. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package jobstore
