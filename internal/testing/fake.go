package testing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
)

// FakeBaseURL prefixes the "next" links produced by [FakeSpotify].
const FakeBaseURL = "https://api.spotify.test/v1"

const defaultPageSize = 20

// FakePlaylist is a playlist held by [FakeSpotify].
type FakePlaylist struct {
	ID            string
	Name          string
	Description   string
	Public        bool
	Collaborative bool
	OwnerID       string
	Tracks        []string
	Images        []services.SpotifyImage
	Cover         []byte
}

type fault struct {
	method    string
	prefix    string
	status    int
	network   bool
	skip      int
	remaining int
}

// FakeSpotify is an in-memory account implementing [services.Transport].
//
// It serves the endpoints used by [services.SpotifyService] with real paging
// (absolute next links), and can inject provider failures, throttling and
// dropped connections per endpoint.
type FakeSpotify struct {
	mu sync.Mutex

	UserID    string
	Playlists []*FakePlaylist
	Liked     []string
	Names     map[string]string
	Images    map[string][]byte

	calls  []services.Request
	faults []*fault
	nextID int
}

// NewFakeSpotify creates an empty account for userID.
func NewFakeSpotify(userID string) *FakeSpotify {
	return &FakeSpotify{
		UserID: userID,
		Names:  map[string]string{},
		Images: map[string][]byte{},
	}
}

// AddPlaylist seeds a playlist and returns it. An empty OwnerID means the account owns it.
func (f *FakeSpotify) AddPlaylist(p FakePlaylist) *FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = f.newID("pl")
	}
	if p.OwnerID == "" {
		p.OwnerID = f.UserID
	}
	f.Playlists = append(f.Playlists, &p)
	return &p
}

// Like seeds liked tracks, given newest first.
func (f *FakeSpotify) Like(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Liked = append(f.Liked, ids...)
}

// Fail makes the next times requests matching method and path prefix answer status.
// A negative times fails forever.
func (f *FakeSpotify) Fail(method, pathPrefix string, status, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fault{method: method, prefix: pathPrefix, status: status, remaining: times})
}

// FailAfter is [FakeSpotify.Fail] starting after skip matching requests succeeded.
func (f *FakeSpotify) FailAfter(method, pathPrefix string, status, skip, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fault{method: method, prefix: pathPrefix, status: status, skip: skip, remaining: times})
}

// Drop makes the next times matching requests fail without a response.
func (f *FakeSpotify) Drop(method, pathPrefix string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fault{method: method, prefix: pathPrefix, network: true, remaining: times})
}

// Calls returns every request received, in order.
func (f *FakeSpotify) Calls() []services.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsTo returns the requests whose method matches and whose path starts with prefix.
func (f *FakeSpotify) CallsTo(method, prefix string) []services.Request {
	var out []services.Request
	for _, c := range f.Calls() {
		if c.Method == method && strings.HasPrefix(relativePath(c.Path), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// PlaylistsNamed returns the playlists with the exact name.
func (f *FakeSpotify) PlaylistsNamed(name string) []*FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FakePlaylist
	for _, p := range f.Playlists {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// LikedIDs returns the liked track ids, newest first.
func (f *FakeSpotify) LikedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Liked)
}

func (f *FakeSpotify) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// FetchImage implements [services.ImageFetcher] over Images. Like the real
// fetcher it refuses hosts outside the provider's image CDNs.
func (f *FakeSpotify) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, services.Request{Method: http.MethodGet, Path: imageURL})

	u, err := url.Parse(imageURL)
	if err != nil || !services.SpotifyImageHost(u.Hostname()) {
		return nil, errors.Wrapf(shared.ErrInvalidArgument, "cover url %q is not on a Spotify image host", imageURL)
	}
	img, ok := f.Images[imageURL]
	if !ok {
		return nil, errors.Wrapf(shared.ErrNotFound, "image %s", imageURL)
	}
	return img, nil
}

// Do implements [services.Transport].
func (f *FakeSpotify) Do(ctx context.Context, req services.Request) (*services.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	path, query := splitPath(req)
	for _, ft := range f.faults {
		if ft.remaining == 0 || ft.method != req.Method || !strings.HasPrefix(path, ft.prefix) {
			continue
		}
		if ft.skip > 0 {
			ft.skip--
			continue
		}
		if ft.remaining > 0 {
			ft.remaining--
		}
		if ft.network {
			return nil, errors.New("connection reset by peer")
		}
		return fakeError(ft.status, "injected failure"), nil
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && path == "/me":
		return fakeJSON(http.StatusOK, services.SpotifyUser{ID: f.UserID, DisplayName: f.UserID})

	case req.Method == http.MethodGet && path == "/me/playlists":
		items := make([]services.SpotifySimplePlaylist, len(f.Playlists))
		for i, p := range f.Playlists {
			items[i] = f.simple(p)
		}
		return fakePage(path, query, items)

	case req.Method == http.MethodGet && path == "/me/tracks":
		items := make([]services.SpotifySavedTrack, len(f.Liked))
		for i, id := range f.Liked {
			items[i] = services.SpotifySavedTrack{AddedAt: "2024-01-01T00:00:00Z", Track: f.track(id)}
		}
		return fakePage(path, query, items)

	case req.Method == http.MethodPut && path == "/me/tracks":
		ids, err := decodeList(req.Body, "ids")
		if err != nil {
			return fakeError(http.StatusBadRequest, err.Error()), nil
		}
		for _, id := range ids {
			if !slices.Contains(f.Liked, id) {
				f.Liked = append([]string{id}, f.Liked...)
			}
		}
		return fakeJSON(http.StatusOK, nil)

	case req.Method == http.MethodDelete && path == "/me/tracks":
		ids, err := decodeList(req.Body, "ids")
		if err != nil {
			return fakeError(http.StatusBadRequest, err.Error()), nil
		}
		f.Liked = slices.DeleteFunc(f.Liked, func(id string) bool { return slices.Contains(ids, id) })
		return fakeJSON(http.StatusOK, nil)

	case req.Method == http.MethodPost && len(parts) == 3 && parts[0] == "users" && parts[2] == "playlists":
		var body services.NewPlaylist
		if err := remarshal(req.Body, &body); err != nil || body.Name == "" {
			return fakeError(http.StatusBadRequest, "Missing required field: name"), nil
		}
		p := &FakePlaylist{
			ID:            f.newID("new"),
			Name:          body.Name,
			Description:   body.Description,
			Public:        body.Public,
			Collaborative: body.Collaborative,
			OwnerID:       parts[1],
		}
		f.Playlists = append(f.Playlists, p)
		return fakeJSON(http.StatusCreated, f.simple(p))
	}

	if len(parts) == 3 && parts[0] == "playlists" {
		p := f.find(parts[1])
		if p == nil {
			return fakeError(http.StatusNotFound, "Not found."), nil
		}

		switch {
		case req.Method == http.MethodGet && parts[2] == "tracks":
			items := make([]services.SpotifyPlaylistTrack, len(p.Tracks))
			for i, id := range p.Tracks {
				items[i] = services.SpotifyPlaylistTrack{
					AddedAt: "2024-01-01T00:00:00Z",
					IsLocal: strings.HasPrefix(id, "local:"),
					Track:   f.track(id),
				}
			}
			return fakePage(path, query, items)

		case req.Method == http.MethodPost && parts[2] == "tracks":
			uris, err := decodeList(req.Body, "uris")
			if err != nil {
				return fakeError(http.StatusBadRequest, err.Error()), nil
			}
			for _, uri := range uris {
				p.Tracks = append(p.Tracks, strings.TrimPrefix(uri, "spotify:track:"))
			}
			return fakeJSON(http.StatusCreated, map[string]string{"snapshot_id": f.newID("snap")})

		case req.Method == http.MethodDelete && parts[2] == "followers":
			f.Playlists = slices.DeleteFunc(f.Playlists, func(x *FakePlaylist) bool { return x == p })
			return fakeJSON(http.StatusOK, nil)

		case req.Method == http.MethodPut && parts[2] == "images":
			data, err := base64.StdEncoding.DecodeString(string(req.RawBody))
			if err != nil || req.ContentType != "image/jpeg" {
				return fakeError(http.StatusBadRequest, "Bad image"), nil
			}
			p.Cover = data
			p.Images = []services.SpotifyImage{{URL: "https://i.scdn.co/image/ab67706c0000" + p.ID}}
			return fakeJSON(http.StatusAccepted, nil)
		}
	}

	return fakeError(http.StatusNotFound, "Service not found"), nil
}

func (f *FakeSpotify) find(id string) *FakePlaylist {
	for _, p := range f.Playlists {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *FakeSpotify) simple(p *FakePlaylist) services.SpotifySimplePlaylist {
	public := p.Public
	s := services.SpotifySimplePlaylist{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Owner:         services.Owner{ID: p.OwnerID},
		Public:        &public,
		Collaborative: p.Collaborative,
		Images:        p.Images,
	}
	s.Tracks.Total = len(p.Tracks)
	return s
}

// track resolves an id to a catalog entry. Ids prefixed "local:" are local files
// and ids prefixed "episode:" are podcast episodes.
func (f *FakeSpotify) track(id string) *services.SpotifyTrack {
	name := f.Names[id]
	if name == "" {
		name = "Track " + id
	}
	switch {
	case strings.HasPrefix(id, "local:"):
		return &services.SpotifyTrack{Name: name, Type: "track", IsLocal: true}
	case strings.HasPrefix(id, "episode:"):
		return &services.SpotifyTrack{ID: strings.TrimPrefix(id, "episode:"), Name: name, Type: "episode"}
	case id == "":
		return nil
	}
	return &services.SpotifyTrack{
		ID:      id,
		Name:    name,
		Type:    "track",
		Artists: []services.SpotifyArtist{{ID: "ar-" + id, Name: "Artist " + id}},
		URI:     services.TrackURI(id),
	}
}

func relativePath(p string) string {
	return strings.TrimPrefix(p, FakeBaseURL)
}

// splitPath returns the API path and query of req, whether it was sent
// relative or as an absolute next link.
func splitPath(req services.Request) (string, url.Values) {
	query := url.Values{}
	for k, v := range req.Query {
		query.Set(k, v)
	}

	path := relativePath(req.Path)
	if before, after, ok := strings.Cut(path, "?"); ok {
		path = before
		if parsed, err := url.ParseQuery(after); err == nil {
			for k, v := range parsed {
				query[k] = v
			}
		}
	}
	return path, query
}

func fakePage[T any](path string, query url.Values, items []T) (*services.Response, error) {
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	offset, _ := strconv.Atoi(query.Get("offset"))
	offset = max(0, min(offset, len(items)))
	end := min(offset+limit, len(items))

	page := services.Page[T]{Items: items[offset:end], Total: len(items), Limit: limit, Offset: offset}
	if end < len(items) {
		next := fmt.Sprintf("%s%s?offset=%d&limit=%d", FakeBaseURL, path, end, limit)
		page.Next = &next
	}
	return fakeJSON(http.StatusOK, page)
}

func fakeJSON(status int, v any) (*services.Response, error) {
	var body []byte
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		body = data
	}
	return &services.Response{StatusCode: status, Header: http.Header{"Content-Type": {"application/json"}}, Body: body}, nil
}

func fakeError(status int, msg string) *services.Response {
	body, _ := json.Marshal(map[string]any{"error": map[string]any{"status": status, "message": msg}})
	return &services.Response{StatusCode: status, Header: http.Header{"Retry-After": {"0"}}, Body: body}
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func decodeList(body any, key string) ([]string, error) {
	var m map[string][]string
	if err := remarshal(body, &m); err != nil {
		return nil, err
	}
	list, ok := m[key]
	if !ok {
		return nil, errors.Newf("missing %q", key)
	}
	return list, nil
}

var _ services.Transport = (*FakeSpotify)(nil)
