package services

import (
	"context"
	"iter"
)

// Library defines the provider operations the sync engine drives.
//
// [SpotifyService] is the production implementation.
type Library interface {
	// UserProfile returns the account the session is authorized for.
	UserProfile(ctx context.Context) (*SpotifyUser, error)

	// Playlists lazily lists the user's playlists in provider order.
	Playlists(ctx context.Context) iter.Seq2[SpotifySimplePlaylist, error]

	// PlaylistItems lazily lists a playlist's entries in playlist order.
	PlaylistItems(ctx context.Context, playlistID string) iter.Seq2[SpotifyPlaylistTrack, error]

	// SavedTracks lazily lists liked songs, newest first.
	SavedTracks(ctx context.Context) iter.Seq2[SpotifySavedTrack, error]

	// CreatePlaylist creates a new playlist; it never merges with an existing one.
	CreatePlaylist(ctx context.Context, userID string, p NewPlaylist) (*SpotifySimplePlaylist, error)

	// AddPlaylistItems appends one bounded batch of tracks.
	AddPlaylistItems(ctx context.Context, playlistID string, trackIDs []string) error

	// SaveTracks likes one bounded batch of tracks.
	SaveTracks(ctx context.Context, trackIDs []string) error

	// RemoveSavedTracks unlikes one bounded batch of tracks.
	RemoveSavedTracks(ctx context.Context, trackIDs []string) error

	// UnfollowPlaylist deletes an owned playlist or unfollows a followed one.
	UnfollowPlaylist(ctx context.Context, playlistID string) error

	// UploadPlaylistCover sets a custom JPEG cover.
	UploadPlaylistCover(ctx context.Context, playlistID string, jpeg []byte) error

	// FetchImage downloads cover art from the provider's image CDNs, without credentials.
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

var _ Library = (*SpotifyService)(nil)
