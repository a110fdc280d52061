// Package tasks runs the account-level operations of the sync engine with real-time progress reporting.
//
// # Core Operations
//
// [Engine] exposes four operations, each bound to one [services.AuthSession]:
//
//  1. [Engine.Export] : Account → snapshot
//     - Lists playlists and keeps the selected ones, in listing order
//     - Fetches every playlist's tracks (local files, episodes and removed entries are skipped)
//     - Optionally fetches liked songs, newest first
//     - A playlist that fails part way is kept and marked partial
//
//  2. [Engine.Import] : Snapshot → account
//     - Always creates new playlists; never merges into same-named ones
//     - Adds tracks in order, in batches, dropping duplicates within a batch
//     - Saves liked songs oldest first so the destination ends up newest first
//     - Restores uploaded covers; a cover failure is only a warning
//
//  3. [Engine.PlanErase] : Describes an erase and derives its confirmation token
//
//  4. [Engine.Erase] : Removes playlists (delete when owned, unfollow otherwise) and liked songs
//     - Refuses to run without the plan's token
//
// # Failures
//
// Item failures (one playlist, one batch) are recorded in the [Report] and the
// operation continues. Listing failures, authorization failures and
// cancellation abort it; batches already written are never rolled back.
// [Report.Err] turns the report into nil, a [*PartialError] or the abort reason.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, a level, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking, and are also written to the engine's logger.
//
// # Journal
//
// An optional [Journal] (repositories.RunRepository) records each run and the
// playlists it touched. It is informational only and never consulted to skip work.
package tasks
