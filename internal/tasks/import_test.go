package tasks

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/shared"
	tu "github.com/desertthunder/spotsync/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(records ...models.PlaylistRecord) *models.Snapshot {
	s := models.NewSnapshot("alice-id")
	s.Playlists = records
	return s
}

func record(id, name string, ids ...string) models.PlaylistRecord {
	r := models.PlaylistRecord{ProviderPlaylistID: id, Name: name, Tracks: []models.TrackRef{}}
	for _, t := range ids {
		r.Tracks = append(r.Tracks, models.TrackRef{ProviderTrackID: t})
	}
	return r
}

func TestImport(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips through a snapshot file", func(t *testing.T) {
		src := sourceAccount()
		e := newTestEngine()

		exported, _, err := e.Export(ctx, tu.NewFakeSession("alice", src), allOf(true), nil)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "snapshot.json")
		require.NoError(t, exported.Save(path))
		loaded, err := models.LoadSnapshot(path)
		require.NoError(t, err)

		dst := tu.NewFakeSpotify("bob-id")
		dst.Images["https://i.scdn.co/image/ab67706c0000road"] = []byte("jpeg-bytes")
		report, err := e.Import(ctx, tu.NewFakeSession("bob", dst), loaded, allOf(true), nil)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		mirrored, _, err := e.Export(ctx, tu.NewFakeSession("bob", dst), allOf(true), nil)
		require.NoError(t, err)

		require.Len(t, mirrored.Playlists, len(exported.Playlists))
		for i, want := range exported.Playlists {
			got := mirrored.Playlists[i]
			assert.Equal(t, want.Name, got.Name)
			assert.Equal(t, want.Description, got.Description)
			assert.Equal(t, want.IsPublic, got.IsPublic)
			assert.Equal(t, want.IsCollaborative, got.IsCollaborative)
			assert.Equal(t, want.TrackIDs(), got.TrackIDs())
			assert.Equal(t, "bob-id", got.OwnerID)
		}
		assert.Equal(t, exported.LikedIDs(), mirrored.LikedIDs())
		assert.Equal(t, []byte("jpeg-bytes"), dst.PlaylistsNamed("Road Trip")[0].Cover)

		require.Len(t, report.Playlists, 2)
		assert.Equal(t, "pl-1", report.Playlists[0].SourceID)
		assert.Equal(t, "created", report.Playlists[0].Action)
		assert.Equal(t, ContentHash("Road Trip", []string{"t1", "t2", "t3"}), report.Playlists[0].ContentHash)
	})

	t.Run("250 tracks are added in three ordered batches", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		ids := trackIDs("t", 250)

		report, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snapshotOf(record("src", "Long", ids...)), allOf(false), nil)
		require.NoError(t, err)
		require.Len(t, report.Playlists, 1)

		dest := report.Playlists[0].DestinationID
		assert.Len(t, dst.CallsTo(http.MethodPost, "/playlists/"+dest+"/tracks"), 3)
		assert.Equal(t, ids, dst.PlaylistsNamed("Long")[0].Tracks)
		assert.Equal(t, 250, report.Playlists[0].Tracks)
	})

	t.Run("duplicates are dropped within a batch only", func(t *testing.T) {
		snap := snapshotOf(record("src", "Dupes", "a", "b", "a"))

		dst := tu.NewFakeSpotify("bob-id")
		_, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, dst.PlaylistsNamed("Dupes")[0].Tracks)

		dst = tu.NewFakeSpotify("bob-id")
		small := newTestEngine(func(o *EngineOpts) { o.PlaylistBatch = 2 })
		_, err = small.Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "a"}, dst.PlaylistsNamed("Dupes")[0].Tracks)
	})

	t.Run("playlists are never merged", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		dst.AddPlaylist(tu.FakePlaylist{Name: "Mix", Tracks: []string{"old"}})
		snap := snapshotOf(record("src", "Mix", "t1"))
		e := newTestEngine()

		for range 2 {
			_, err := e.Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
			require.NoError(t, err)
		}

		mixes := dst.PlaylistsNamed("Mix")
		require.Len(t, mixes, 3)
		assert.Equal(t, []string{"old"}, mixes[0].Tracks)
		assert.Equal(t, []string{"t1"}, mixes[1].Tracks)
		assert.Equal(t, []string{"t1"}, mixes[2].Tracks)
	})

	t.Run("liked songs are idempotent and keep their order", func(t *testing.T) {
		snap := models.NewSnapshot("alice-id")
		for _, id := range trackIDs("l", 120) {
			snap.LikedTracks = append(snap.LikedTracks, models.TrackRef{ProviderTrackID: id})
		}

		dst := tu.NewFakeSpotify("bob-id")
		e := newTestEngine()
		for range 2 {
			report, err := e.Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(true), nil)
			require.NoError(t, err)
			assert.Equal(t, 120, report.Liked)
		}

		assert.Equal(t, trackIDs("l", 120), dst.LikedIDs())
		assert.Len(t, dst.CallsTo(http.MethodPut, "/me/tracks"), 6)
	})

	t.Run("liked songs are skipped unless selected", func(t *testing.T) {
		snap := models.NewSnapshot("alice-id")
		snap.LikedTracks = []models.TrackRef{{ProviderTrackID: "l1"}}

		dst := tu.NewFakeSpotify("bob-id")
		_, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.NoError(t, err)
		assert.Empty(t, dst.LikedIDs())
	})

	t.Run("a failed batch is recorded and the import continues", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		dst.FailAfter(http.MethodPost, "/playlists/", http.StatusInternalServerError, 1, 1)
		snap := snapshotOf(record("src1", "Long", trackIDs("t", 250)...), record("src2", "Next", "n1"))

		report, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.NoError(t, err)

		long := dst.PlaylistsNamed("Long")[0]
		assert.Equal(t, append(trackIDs("t", 250)[:100:100], trackIDs("t", 250)[200:]...), long.Tracks)
		assert.Equal(t, []string{"n1"}, dst.PlaylistsNamed("Next")[0].Tracks)

		require.Len(t, report.Failures, 1)
		f := report.Failures[0]
		assert.Equal(t, AddTracks, f.Phase)
		assert.Equal(t, 2, f.Batch)
		assert.Equal(t, "Long", f.Playlist)
		assert.Contains(t, f.String(), "batch 2")
		assert.True(t, report.Playlists[0].Partial)
		assert.Equal(t, 150, report.Playlists[0].Tracks)

		// the failed POST is surfaced, never replayed
		assert.Len(t, dst.CallsTo(http.MethodPost, "/playlists/"+long.ID+"/tracks"), 3)

		var partial *PartialError
		require.True(t, errors.As(report.Err(), &partial))
		assert.Equal(t, models.OperationImport, partial.Operation)
		assert.Equal(t, 1, partial.Failed)
		assert.Equal(t, 6, partial.Total)
	})

	t.Run("a failed create skips the record", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		dst.Fail(http.MethodPost, "/users/", http.StatusBadGateway, 1)
		snap := snapshotOf(record("src1", "First", "t1"), record("src2", "Second", "t2"))

		report, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.NoError(t, err)

		assert.Empty(t, dst.PlaylistsNamed("First"))
		assert.Len(t, dst.PlaylistsNamed("Second"), 1)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, CreatePlaylist, report.Failures[0].Phase)
		assert.Equal(t, "src1", report.Failures[0].PlaylistID)
		assert.Len(t, dst.CallsTo(http.MethodPost, "/users/"), 2)
	})

	t.Run("expired authorization aborts", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		dst.Fail(http.MethodPost, "/users/", http.StatusUnauthorized, -1)
		snap := snapshotOf(record("src1", "First", "t1"), record("src2", "Second", "t2"))

		report, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		assert.True(t, errors.Is(err, shared.ErrAuth))
		assert.Len(t, dst.CallsTo(http.MethodPost, "/users/"), 1)
		assert.Equal(t, models.OutcomeAborted, report.Outcome())
	})

	t.Run("covers", func(t *testing.T) {
		custom := record("src1", "Custom", "t1")
		custom.Images = []models.ImageRef{{URL: "https://i.scdn.co/image/ab67706c0000custom"}}
		mosaic := record("src2", "Mosaic", "t2")
		mosaic.Images = []models.ImageRef{{URL: "https://mosaic.scdn.co/640/abc"}}
		missing := record("src3", "Missing", "t3")
		missing.Images = []models.ImageRef{{URL: "https://i.scdn.co/image/ab67706c0000gone"}}
		albumArt := record("src4", "Album Art", "t4")
		albumArt.Images = []models.ImageRef{{URL: "https://i.scdn.co/image/ab67616d0000b273album"}}
		snap := snapshotOf(custom, mosaic, missing, albumArt)

		dst := tu.NewFakeSpotify("bob-id")
		dst.Images["https://i.scdn.co/image/ab67706c0000custom"] = []byte("custom-jpeg")
		dst.Images["https://i.scdn.co/image/ab67616d0000b273album"] = []byte("album-jpeg")
		progress := make(chan ProgressUpdate, 100)

		report, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), progress)
		require.NoError(t, err)
		assert.NoError(t, report.Err(), "a cover failure is only a warning")

		assert.Equal(t, []byte("custom-jpeg"), dst.PlaylistsNamed("Custom")[0].Cover)
		assert.Nil(t, dst.PlaylistsNamed("Mosaic")[0].Cover)
		assert.Nil(t, dst.PlaylistsNamed("Missing")[0].Cover)
		assert.Nil(t, dst.PlaylistsNamed("Album Art")[0].Cover, "generated album art is not uploaded")
		assert.Empty(t, dst.CallsTo(http.MethodGet, "https://i.scdn.co/image/ab67616d"))
		assert.Len(t, dst.CallsTo(http.MethodPut, "/playlists/"), 1)

		var warnings []ProgressUpdate
		for _, u := range collect(progress) {
			if u.Level == log.WarnLevel && u.Phase == UploadCover {
				warnings = append(warnings, u)
			}
		}
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Message, "Missing")

		dst = tu.NewFakeSpotify("bob-id")
		dst.Images["https://i.scdn.co/image/ab67706c0000custom"] = []byte("custom-jpeg")
		skip := newTestEngine(func(o *EngineOpts) { o.SkipCovers = true })
		_, err = skip.Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.NoError(t, err)
		assert.Empty(t, dst.CallsTo(http.MethodPut, "/playlists/"))
	})

	t.Run("pauses between playlists", func(t *testing.T) {
		var pauses []time.Duration
		e := newTestEngine(func(o *EngineOpts) {
			o.ImportPause = 5 * time.Millisecond
			o.Sleep = func(_ context.Context, d time.Duration) error {
				pauses = append(pauses, d)
				return nil
			}
		})
		snap := snapshotOf(record("a", "A"), record("b", "B"), record("c", "C"))

		_, err := e.Import(ctx, tu.NewFakeSession("bob", tu.NewFakeSpotify("bob-id")), snap, allOf(false), nil)
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, pauses)
	})

	t.Run("selection indexes the snapshot", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		snap := snapshotOf(record("a", "A", "t1"), record("b", "B", "t2"), record("c", "C", "t3"))

		report, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, selection.Expression{Expr: "2-3"}, nil)
		require.NoError(t, err)
		require.Len(t, report.Playlists, 2)
		assert.Equal(t, "b", report.Playlists[0].SourceID)
		assert.Empty(t, dst.PlaylistsNamed("A"))
	})

	t.Run("invalid snapshot is rejected before any write", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		snap := snapshotOf(record("dup", "A"), record("dup", "B"))

		_, err := newTestEngine().Import(ctx, tu.NewFakeSession("bob", dst), snap, allOf(false), nil)
		require.Error(t, err)
		assert.Empty(t, dst.Calls())
	})

	t.Run("cancellation keeps committed batches", func(t *testing.T) {
		dst := tu.NewFakeSpotify("bob-id")
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		session := sessionOver("bob", dst, cancelOn{FakeSpotify: dst, path: "/playlists/", cancel: cancel})
		snap := snapshotOf(record("a", "A", trackIDs("t", 150)...), record("b", "B", "t1"))

		report, err := newTestEngine().Import(cctx, session, snap, allOf(false), nil)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, trackIDs("t", 100), dst.PlaylistsNamed("A")[0].Tracks)
		assert.Empty(t, dst.PlaylistsNamed("B"))
		require.Len(t, report.Playlists, 1)
		assert.True(t, report.Playlists[0].Partial)
	})
}
