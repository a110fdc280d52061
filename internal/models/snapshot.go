package models

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
)

// SnapshotVersion is written to every new snapshot file.
const SnapshotVersion = 1

// TrackRef identifies a track by its provider id. Name and artists are for display only.
type TrackRef struct {
	ProviderTrackID string   `json:"provider_track_id"`
	Name            string   `json:"name"`
	Artists         []string `json:"artists"`
}

// ImageRef is a playlist image. Width and height are unknown (nil) for uploaded covers.
type ImageRef struct {
	URL    string `json:"url"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

// PlaylistRecord is one exported playlist. Tracks are in listening order.
type PlaylistRecord struct {
	ProviderPlaylistID string     `json:"provider_playlist_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	IsPublic           bool       `json:"is_public"`
	IsCollaborative    bool       `json:"is_collaborative"`
	OwnerID            string     `json:"owner_id,omitempty"`
	Tracks             []TrackRef `json:"tracks"`
	Images             []ImageRef `json:"images"`

	// Partial is set when fetching the playlist's items failed part way.
	Partial bool `json:"partial,omitempty"`
}

// TrackIDs returns the provider ids of the record's tracks, in order.
func (p PlaylistRecord) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ProviderTrackID
	}
	return ids
}

// Snapshot is the exportable state of one account.
//
// Top-level keys it does not know are kept in memory and written back on save.
type Snapshot struct {
	Version     int              `json:"version,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	SourceUser  string           `json:"source_user,omitempty"`
	Playlists   []PlaylistRecord `json:"playlists"`
	LikedTracks []TrackRef       `json:"liked_tracks"`

	extra map[string]json.RawMessage
}

// NewSnapshot creates an empty snapshot stamped with the current time.
func NewSnapshot(sourceUser string) *Snapshot {
	return &Snapshot{
		Version:     SnapshotVersion,
		GeneratedAt: time.Now().UTC(),
		SourceUser:  sourceUser,
		Playlists:   []PlaylistRecord{},
		LikedTracks: []TrackRef{},
	}
}

// snapshotFields has the fields of [Snapshot] without its JSON methods.
type snapshotFields Snapshot

var snapshotKeys = []string{"version", "generated_at", "source_user", "playlists", "liked_tracks"}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	data, err := marshalRaw(snapshotFields(s))
	if err != nil || len(s.extra) == 0 {
		return data, err
	}

	merged := make(map[string]json.RawMessage, len(s.extra)+len(snapshotKeys))
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return marshalRaw(merged)
}

// marshalRaw encodes v without escaping HTML characters, which are common in playlist names.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields snapshotFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range snapshotKeys {
		delete(raw, k)
	}
	for k, v := range raw {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return err
		}
		raw[k] = buf.Bytes()
	}

	*s = Snapshot(fields)
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

// Extra returns the raw value of an unknown top-level key preserved from the loaded file.
func (s *Snapshot) Extra(key string) (json.RawMessage, bool) {
	v, ok := s.extra[key]
	return v, ok
}

// Playlist finds a record by its source playlist id.
func (s *Snapshot) Playlist(id string) (*PlaylistRecord, bool) {
	for i := range s.Playlists {
		if s.Playlists[i].ProviderPlaylistID == id {
			return &s.Playlists[i], true
		}
	}
	return nil, false
}

// LikedIDs returns the provider ids of the liked tracks, newest first.
func (s *Snapshot) LikedIDs() []string {
	ids := make([]string, len(s.LikedTracks))
	for i, t := range s.LikedTracks {
		ids[i] = t.ProviderTrackID
	}
	return ids
}

// TrackCount is the number of playlist entries across all records.
func (s *Snapshot) TrackCount() int {
	n := 0
	for _, p := range s.Playlists {
		n += len(p.Tracks)
	}
	return n
}

// Validate checks that every track carries an id and that playlist ids are unique.
func (s *Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Playlists))
	for i, p := range s.Playlists {
		if p.ProviderPlaylistID == "" {
			return errors.Newf("playlist %d (%q) has no provider_playlist_id", i+1, p.Name)
		}
		if _, dup := seen[p.ProviderPlaylistID]; dup {
			return errors.Newf("duplicate provider_playlist_id %q", p.ProviderPlaylistID)
		}
		seen[p.ProviderPlaylistID] = struct{}{}

		for j, t := range p.Tracks {
			if t.ProviderTrackID == "" {
				return errors.Newf("playlist %q track %d has no provider_track_id", p.Name, j+1)
			}
		}
	}
	for j, t := range s.LikedTracks {
		if t.ProviderTrackID == "" {
			return errors.Newf("liked track %d has no provider_track_id", j+1)
		}
	}
	return nil
}

// DecodeSnapshot reads and validates a snapshot from r.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrapf(shared.ErrIO, "malformed snapshot: %v", err)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(shared.ErrIO, "invalid snapshot: %v", err)
	}
	return &s, nil
}

// Encode writes the snapshot as indented UTF-8 JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return errors.Wrapf(shared.ErrIO, "encoding snapshot: %v", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(shared.ErrIO, "opening %s: %v", path, err)
	}
	defer f.Close()

	s, err := DecodeSnapshot(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return s, nil
}

// Save writes the snapshot to path, replacing any existing file atomically.
func (s *Snapshot) Save(path string) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(shared.ErrIO, "creating %s: %v", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return errors.Wrapf(shared.ErrIO, "creating temp file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrapf(shared.ErrIO, "writing %s: %v", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.Wrapf(shared.ErrIO, "writing %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(shared.ErrIO, "writing %s: %v", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(shared.ErrIO, "replacing %s: %v", path, err)
	}
	return nil
}
