package selection

import (
	"strings"

	"github.com/desertthunder/spotsync/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SnapshotMatch selects the available playlists that correspond to records of a snapshot.
//
// A playlist matches a record with the same id. Otherwise it matches by name
// after NFC normalisation and case folding, so an account that received an
// import (and therefore new ids) can still be cleaned up from the same file.
type SnapshotMatch struct {
	Records      []models.PlaylistRecord
	IncludeLiked bool
}

// FromSnapshot matches every record of s.
func FromSnapshot(s *models.Snapshot, includeLiked bool) SnapshotMatch {
	return SnapshotMatch{Records: s.Playlists, IncludeLiked: includeLiked}
}

// Select implements [Selector].
func (m SnapshotMatch) Select(available []Playlist) (Set, error) {
	ids := make(map[string]struct{}, len(m.Records))
	names := make(map[string]struct{}, len(m.Records))
	for _, r := range m.Records {
		ids[r.ProviderPlaylistID] = struct{}{}
		names[NormalizeName(r.Name)] = struct{}{}
	}

	set := NewSet(m.IncludeLiked)
	for _, p := range available {
		if _, ok := ids[p.ID]; ok {
			set.PlaylistIDs[p.ID] = struct{}{}
			continue
		}
		if _, ok := names[NormalizeName(p.Name)]; ok {
			set.PlaylistIDs[p.ID] = struct{}{}
		}
	}
	return set, nil
}

// NormalizeName folds case and composes unicode so visually equal names compare equal.
func NormalizeName(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}
