package tasks

import (
	"context"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
)

// Import recreates the selected snapshot records, and liked songs when selected, on the session's account.
//
// Every record becomes a new playlist, even if one with the same name already
// exists. Tracks are added in order, in batches; a failed batch is recorded
// and the rest still run. Liked songs are saved oldest first so the account
// ends up with the same newest-first order as the source.
func (e *Engine) Import(
	ctx context.Context,
	session *services.AuthSession,
	snap *models.Snapshot,
	sel selection.Selector,
	progress chan<- ProgressUpdate,
) (*Report, error) {
	if snap == nil {
		return nil, errors.Wrap(shared.ErrIO, "no snapshot to import")
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	report, done, err := e.begin(session, models.OperationImport, progress)
	if err != nil {
		return nil, err
	}
	defer done()

	set, err := sel.Select(recordCandidates(snap.Playlists))
	if err != nil {
		return report, report.abort(err)
	}

	var records []models.PlaylistRecord
	for _, r := range snap.Playlists {
		if set.Contains(r.ProviderPlaylistID) {
			records = append(records, r)
		}
	}

	lib := session.Library()
	total := len(records)

	for i, rec := range records {
		if ctx.Err() != nil {
			return report, report.abort(stopErr(ctx))
		}
		if i > 0 && e.opts.ImportPause > 0 {
			if err := e.opts.Sleep(ctx, e.opts.ImportPause); err != nil {
				return report, report.abort(stopErr(ctx))
			}
		}

		if err := e.importPlaylist(ctx, lib, session.UserID(), rec, i+1, total, report, progress); err != nil {
			return report, report.abort(err)
		}
	}

	if !set.IncludeLiked || len(snap.LikedTracks) == 0 {
		return report, nil
	}

	ids := snap.LikedIDs()
	slices.Reverse(ids)
	if err := e.likedBatches(ctx, ImportLiked, ids, lib.SaveTracks, report, progress); err != nil {
		return report, report.abort(err)
	}
	return report, nil
}

// importPlaylist creates one record and fills it. A non-nil error aborts the import.
func (e *Engine) importPlaylist(
	ctx context.Context,
	lib services.Library,
	userID string,
	rec models.PlaylistRecord,
	step, total int,
	report *Report,
	progress chan<- ProgressUpdate,
) error {
	e.sendProgress(progress, creatingPlaylistUpdate(step, total, rec.Name))
	report.Items++

	created, err := lib.CreatePlaylist(ctx, userID, services.NewPlaylist{
		Name:          rec.Name,
		Description:   rec.Description,
		Public:        rec.IsPublic,
		Collaborative: rec.IsCollaborative,
	})
	if err != nil {
		if fatal(ctx, err) {
			return abortReason(ctx, err)
		}
		f := Failure{Phase: CreatePlaylist, PlaylistID: rec.ProviderPlaylistID, Playlist: rec.Name, Err: err}
		report.fail(f)
		e.sendProgress(progress, failureUpdate(CreatePlaylist, step, total, f))
		return nil
	}

	result := PlaylistResult{
		SourceID:      rec.ProviderPlaylistID,
		DestinationID: created.ID,
		Name:          rec.Name,
		Action:        "created",
		ContentHash:   ContentHash(rec.Name, rec.TrackIDs()),
	}
	defer func() { report.Playlists = append(report.Playlists, result) }()

	batches := chunk(rec.TrackIDs(), e.opts.PlaylistBatch)
	for b, batch := range batches {
		if ctx.Err() != nil {
			result.Partial = true
			return stopErr(ctx)
		}
		e.sendProgress(progress, addTracksUpdate(b+1, len(batches), rec.Name))
		report.Items++

		batch = dedupe(batch)
		if err := lib.AddPlaylistItems(ctx, created.ID, batch); err != nil {
			result.Partial = true
			if fatal(ctx, err) {
				return abortReason(ctx, err)
			}
			f := Failure{Phase: AddTracks, PlaylistID: created.ID, Playlist: rec.Name, Batch: b + 1, Err: err}
			report.fail(f)
			e.sendProgress(progress, failureUpdate(AddTracks, b+1, len(batches), f))
			continue
		}
		result.Tracks += len(batch)
	}

	if !e.opts.SkipCovers && customCover(rec.Images) {
		if err := e.restoreCover(ctx, lib, created.ID, rec.Images[0].URL); err != nil {
			if fatal(ctx, err) {
				return abortReason(ctx, err)
			}
			e.sendProgress(progress, coverWarningUpdate(rec.Name, err))
		}
	}

	e.sendProgress(progress, importedPlaylistUpdate(step, total, result))
	return nil
}

func (e *Engine) restoreCover(ctx context.Context, lib services.Library, playlistID, imageURL string) error {
	img, err := lib.FetchImage(ctx, imageURL)
	if err != nil {
		return errors.Wrap(err, "downloading cover")
	}
	if err := lib.UploadPlaylistCover(ctx, playlistID, img); err != nil {
		return errors.Wrap(err, "uploading cover")
	}
	return nil
}

// likedBatches applies write to ids in bounded batches, recording failed batches.
// A non-nil error aborts the operation.
func (e *Engine) likedBatches(
	ctx context.Context,
	phase Phase,
	ids []string,
	write func(context.Context, []string) error,
	report *Report,
	progress chan<- ProgressUpdate,
) error {
	batches := chunk(ids, e.opts.LibraryBatch)
	for b, batch := range batches {
		if ctx.Err() != nil {
			return stopErr(ctx)
		}
		report.Items++

		if err := write(ctx, batch); err != nil {
			if fatal(ctx, err) {
				return abortReason(ctx, err)
			}
			f := Failure{Phase: phase, Batch: b + 1, Err: err}
			report.fail(f)
			e.sendProgress(progress, failureUpdate(phase, b+1, len(batches), f))
			continue
		}
		report.Liked += len(batch)
		e.sendProgress(progress, likedBatchUpdate(phase, b+1, len(batches), report.Liked))
	}
	return nil
}

// uploadedCoverPrefix starts the image id of covers uploaded by a user. Generated
// covers are either a mosaic.* collage or the first album's art (ab67616d...).
const uploadedCoverPrefix = "ab67706c"

// customCover reports whether the first image was uploaded by the user rather
// than generated by the provider from the first tracks' artwork.
func customCover(images []models.ImageRef) bool {
	if len(images) == 0 || images[0].URL == "" {
		return false
	}
	u, err := url.Parse(images[0].URL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(path.Base(u.Path), uploadedCoverPrefix)
}

func recordCandidates(records []models.PlaylistRecord) []selection.Playlist {
	out := make([]selection.Playlist, len(records))
	for i, r := range records {
		out[i] = selection.Playlist{ID: r.ProviderPlaylistID, Name: r.Name, Public: r.IsPublic}
	}
	return out
}
