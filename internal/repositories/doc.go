// Package repositories implements SQLite persistence for the run journal.
//
// [RunRepository] implements models.Repository[*models.Run]. Each run row owns
// its run_playlists rows, which are written together in one transaction.
// Runs are soft deleted via deleted_at and excluded from queries by default.
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
