// Spotify Web API endpoints used by the sync engine
//
// Response types are based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/base64"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
)

const (
	// MaxPlaylistBatch is the provider's limit of items per add-to-playlist call.
	MaxPlaylistBatch = 100
	// MaxLibraryBatch is the provider's limit of ids per save/remove saved-tracks call.
	MaxLibraryBatch = 50
	// MaxCoverBytes is the largest base64 payload accepted by the cover upload endpoint.
	MaxCoverBytes = 256 * 1024

	playlistPageSize = 50
	itemsPageSize    = 100
	savedPageSize    = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

// SpotifyImage represents an image resource. Width and height are null for uploaded covers.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height *int   `json:"height"`
	Width  *int   `json:"width"`
}

// SpotifyTrack represents a Spotify track or, in playlists, an episode.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	IsLocal bool            `json:"is_local"`
	Artists []SpotifyArtist `json:"artists"`
	Album   SpotifyAlbum    `json:"album"`
	URI     string          `json:"uri"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	Owner         Owner                `json:"owner"`
	Public        *bool                `json:"public"`
	Collaborative bool                 `json:"collaborative"`
	SnapshotID    string               `json:"snapshot_id"`
	Tracks        simplePlaylistTracks `json:"tracks"`
	Images        []SpotifyImage       `json:"images"`
	URI           string               `json:"uri"`
}

// IsPublic treats a null visibility as private.
func (p SpotifySimplePlaylist) IsPublic() bool {
	return p.Public != nil && *p.Public
}

// SpotifyPlaylistTrack represents an entry of a playlist. Track is nil for removed or unavailable items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// NewPlaylist holds the attributes of a playlist to create.
type NewPlaylist struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Public        bool   `json:"public"`
	Collaborative bool   `json:"collaborative"`
}

// TrackURI converts a track id to the URI form expected by playlist endpoints.
func TrackURI(id string) string {
	return "spotify:track:" + id
}

// SpotifyService implements [Library] over a [Client].
type SpotifyService struct {
	client *Client
	images ImageFetcher
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithImageFetcher replaces the default [CoverFetcher].
func WithImageFetcher(f ImageFetcher) SpotifyOption {
	return func(s *SpotifyService) { s.images = f }
}

// NewSpotifyService creates a new [SpotifyService] sending requests through c.
//
// Cover downloads never go through c: they use an unauthenticated [CoverFetcher]
// unless [WithImageFetcher] says otherwise.
func NewSpotifyService(c *Client, opts ...SpotifyOption) *SpotifyService {
	s := &SpotifyService{client: c}
	for _, opt := range opts {
		opt(s)
	}
	if s.images == nil {
		s.images = NewCoverFetcher(nil)
	}
	return s
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.client.JSON(ctx, Request{Method: http.MethodGet, Path: "/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlists lists the playlists owned or followed by the current user.
func (s *SpotifyService) Playlists(ctx context.Context) iter.Seq2[SpotifySimplePlaylist, error] {
	return Paginate[SpotifySimplePlaylist](ctx, s.client, Request{
		Method: http.MethodGet,
		Path:   "/me/playlists",
		Query:  pageQuery(playlistPageSize),
	})
}

// PlaylistItems lists a playlist's entries in playlist order.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string) iter.Seq2[SpotifyPlaylistTrack, error] {
	q := pageQuery(itemsPageSize)
	q["additional_types"] = "track"
	return Paginate[SpotifyPlaylistTrack](ctx, s.client, Request{
		Method: http.MethodGet,
		Path:   "/playlists/" + url.PathEscape(playlistID) + "/tracks",
		Query:  q,
	})
}

// SavedTracks lists the user's liked songs, newest first.
func (s *SpotifyService) SavedTracks(ctx context.Context) iter.Seq2[SpotifySavedTrack, error] {
	return Paginate[SpotifySavedTrack](ctx, s.client, Request{
		Method: http.MethodGet,
		Path:   "/me/tracks",
		Query:  pageQuery(savedPageSize),
	})
}

// CreatePlaylist creates a playlist owned by userID. It is never retried after an ambiguous failure.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID string, p NewPlaylist) (*SpotifySimplePlaylist, error) {
	if p.Name == "" {
		return nil, errors.Wrap(shared.ErrMissingArgument, "playlist name")
	}
	var created SpotifySimplePlaylist
	req := Request{
		Method: http.MethodPost,
		Path:   "/users/" + url.PathEscape(userID) + "/playlists",
		Body:   p,
	}
	if err := s.client.JSON(ctx, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddPlaylistItems appends up to [MaxPlaylistBatch] tracks, in order, to the end of a playlist.
func (s *SpotifyService) AddPlaylistItems(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > MaxPlaylistBatch {
		return errors.Wrapf(shared.ErrInvalidArgument, "%d items exceeds the batch limit of %d", len(trackIDs), MaxPlaylistBatch)
	}

	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = TrackURI(id)
	}
	return s.client.JSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "/playlists/" + url.PathEscape(playlistID) + "/tracks",
		Body:   map[string][]string{"uris": uris},
	}, nil)
}

// SaveTracks adds up to [MaxLibraryBatch] tracks to the user's liked songs.
func (s *SpotifyService) SaveTracks(ctx context.Context, trackIDs []string) error {
	return s.library(ctx, http.MethodPut, trackIDs)
}

// RemoveSavedTracks removes up to [MaxLibraryBatch] tracks from the user's liked songs.
func (s *SpotifyService) RemoveSavedTracks(ctx context.Context, trackIDs []string) error {
	return s.library(ctx, http.MethodDelete, trackIDs)
}

func (s *SpotifyService) library(ctx context.Context, method string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > MaxLibraryBatch {
		return errors.Wrapf(shared.ErrInvalidArgument, "%d ids exceeds the batch limit of %d", len(trackIDs), MaxLibraryBatch)
	}
	return s.client.JSON(ctx, Request{
		Method: method,
		Path:   "/me/tracks",
		Body:   map[string][]string{"ids": trackIDs},
	}, nil)
}

// UnfollowPlaylist removes a playlist from the user's library.
//
// Spotify has no separate delete: unfollowing an owned playlist is how it is deleted.
func (s *SpotifyService) UnfollowPlaylist(ctx context.Context, playlistID string) error {
	return s.client.JSON(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/playlists/" + url.PathEscape(playlistID) + "/followers",
	}, nil)
}

// UploadPlaylistCover replaces a playlist's cover with a JPEG image.
func (s *SpotifyService) UploadPlaylistCover(ctx context.Context, playlistID string, jpeg []byte) error {
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(jpeg)))
	base64.StdEncoding.Encode(encoded, jpeg)
	if len(encoded) > MaxCoverBytes {
		return errors.Wrapf(shared.ErrInvalidArgument, "cover image is %d bytes encoded, limit is %d", len(encoded), MaxCoverBytes)
	}

	return s.client.JSON(ctx, Request{
		Method:      http.MethodPut,
		Path:        "/playlists/" + url.PathEscape(playlistID) + "/images",
		RawBody:     encoded,
		ContentType: "image/jpeg",
	}, nil)
}

// FetchImage downloads a cover image by absolute URL, without the account's credentials.
func (s *SpotifyService) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	return s.images.FetchImage(ctx, imageURL)
}

func pageQuery(limit int) map[string]string {
	return map[string]string{"limit": strconv.Itoa(limit)}
}
