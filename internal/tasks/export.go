package tasks

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/services"
)

// Export captures the selected playlists, and liked songs when selected, into a snapshot.
//
// A failure listing the playlist inventory aborts the export with a nil
// snapshot. A failure fetching one playlist's items marks that record
// partial and the export carries on. When ctx ends, the snapshot of what
// was collected so far is returned together with the abort error.
func (e *Engine) Export(
	ctx context.Context,
	session *services.AuthSession,
	sel selection.Selector,
	progress chan<- ProgressUpdate,
) (*models.Snapshot, *Report, error) {
	report, done, err := e.begin(session, models.OperationExport, progress)
	if err != nil {
		return nil, nil, err
	}
	defer done()

	lib := session.Library()
	selected, set, err := e.resolve(ctx, lib, sel, progress)
	if err != nil {
		return nil, report, report.abort(err)
	}

	snap := models.NewSnapshot(session.UserID())
	total := len(selected)

	for i, pl := range selected {
		if ctx.Err() != nil {
			return snap, report, report.abort(stopErr(ctx))
		}
		e.sendProgress(progress, exportingPlaylistUpdate(i+1, total, pl.Name))
		report.Items++

		record := models.PlaylistRecord{
			ProviderPlaylistID: pl.ID,
			Name:               pl.Name,
			Description:        pl.Description,
			IsPublic:           pl.IsPublic(),
			IsCollaborative:    pl.Collaborative,
			OwnerID:            pl.Owner.ID,
			Images:             imageRefs(pl.Images),
		}

		tracks, skipped, err := e.collectItems(ctx, lib, pl.ID)
		record.Tracks = tracks
		report.Skipped += skipped

		if err != nil {
			record.Partial = true
			snap.Playlists = append(snap.Playlists, record)
			report.Playlists = append(report.Playlists, exportResult(record))
			if fatal(ctx, err) {
				return snap, report, report.abort(abortReason(ctx, err))
			}

			f := Failure{Phase: ExportPlaylist, PlaylistID: pl.ID, Playlist: pl.Name, Err: err}
			report.fail(f)
			e.sendProgress(progress, failureUpdate(ExportPlaylist, i+1, total, f))
			continue
		}

		snap.Playlists = append(snap.Playlists, record)
		report.Playlists = append(report.Playlists, exportResult(record))
		e.sendProgress(progress, exportedPlaylistUpdate(i+1, total, pl.Name, len(tracks)))
	}

	if !set.IncludeLiked {
		return snap, report, nil
	}
	if ctx.Err() != nil {
		return snap, report, report.abort(stopErr(ctx))
	}

	report.Items++
	liked, skipped, err := e.collectLiked(ctx, lib)
	snap.LikedTracks = liked
	report.Liked = len(liked)
	report.Skipped += skipped
	if err != nil {
		if fatal(ctx, err) {
			return snap, report, report.abort(abortReason(ctx, err))
		}
		f := Failure{Phase: ExportLiked, Err: err}
		report.fail(f)
		e.sendProgress(progress, failureUpdate(ExportLiked, 1, 1, f))
		return snap, report, nil
	}

	e.sendProgress(progress, exportLikedUpdate(len(liked)))
	return snap, report, nil
}

// collectItems reads a playlist's entries, returning the usable tracks
// collected before any error and the number of entries skipped.
func (e *Engine) collectItems(ctx context.Context, lib services.Library, playlistID string) ([]models.TrackRef, int, error) {
	tracks := []models.TrackRef{}
	skipped := 0
	for item, err := range lib.PlaylistItems(ctx, playlistID) {
		if err != nil {
			return tracks, skipped, err
		}
		ref, ok := trackRef(item.Track)
		if !ok || item.IsLocal {
			skipped++
			continue
		}
		tracks = append(tracks, ref)
	}
	return tracks, skipped, nil
}

// collectLiked is collectItems for the liked songs.
func (e *Engine) collectLiked(ctx context.Context, lib services.Library) ([]models.TrackRef, int, error) {
	liked := []models.TrackRef{}
	skipped := 0
	for item, err := range lib.SavedTracks(ctx) {
		if err != nil {
			return liked, skipped, errors.Wrap(err, "listing liked songs")
		}
		ref, ok := trackRef(item.Track)
		if !ok {
			skipped++
			continue
		}
		liked = append(liked, ref)
	}
	return liked, skipped, nil
}

// trackRef keeps catalog tracks only: no removed entries, local files or episodes.
func trackRef(t *services.SpotifyTrack) (models.TrackRef, bool) {
	if t == nil || t.IsLocal || t.ID == "" {
		return models.TrackRef{}, false
	}
	if t.Type != "" && t.Type != "track" {
		return models.TrackRef{}, false
	}

	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}
	return models.TrackRef{ProviderTrackID: t.ID, Name: t.Name, Artists: artists}, true
}

func imageRefs(images []services.SpotifyImage) []models.ImageRef {
	out := make([]models.ImageRef, len(images))
	for i, img := range images {
		out[i] = models.ImageRef{URL: img.URL, Width: img.Width, Height: img.Height}
	}
	return out
}

func exportResult(r models.PlaylistRecord) PlaylistResult {
	return PlaylistResult{
		SourceID:    r.ProviderPlaylistID,
		Name:        r.Name,
		Action:      "exported",
		Tracks:      len(r.Tracks),
		Partial:     r.Partial,
		ContentHash: ContentHash(r.Name, r.TrackIDs()),
	}
}

// abortReason prefers the context's cause when the operation was cancelled.
func abortReason(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return stopErr(ctx)
	}
	return err
}
