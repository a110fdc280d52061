// Package models defines the snapshot format and the persisted journal entities.
//
// The package contains two categories of types:
//
// 1. Snapshot types: the portable file written by export and read by import and erase
//   - [Snapshot] : root object with generation time, playlists and liked tracks
//   - [PlaylistRecord] : one playlist with ordered tracks and images
//   - [TrackRef] : a track identified by provider id, with display-only name and artists
//   - [ImageRef] : a playlist image
//
// 2. Persistent entities: database-backed models with lifecycle management
//   - [Run] : one journaled export, import or erase, with its [RunPlaylist] entries
//
// Snapshots round-trip field for field. Unknown top-level keys in a loaded file are
// kept and written back, so newer files survive older binaries.
//
// Persistent entities implement the [Model] interface; [Repository] defines CRUD access.
package models
