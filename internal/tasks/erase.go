package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/mitchellh/hashstructure/v2"
)

// PlannedRemoval is a playlist an erase would remove.
type PlannedRemoval struct {
	ID    string
	Name  string
	Owned bool // deleted when owned, unfollowed otherwise
}

// Action is what erasing the playlist does.
func (p PlannedRemoval) Action() string {
	if p.Owned {
		return "deleted"
	}
	return "unfollowed"
}

// ErasePlan describes an erase before it runs. Its Token must be passed back to [Engine.Erase].
type ErasePlan struct {
	Identity     string
	Playlists    []PlannedRemoval
	IncludeLiked bool
	Token        string
}

// Empty reports whether the plan would remove nothing.
func (p *ErasePlan) Empty() bool {
	return len(p.Playlists) == 0 && !p.IncludeLiked
}

// EraseToken derives the confirmation token for removing ids (and liked songs) from identity.
//
// The token changes whenever the identity, the selected playlists or the
// liked flag change, so confirming one plan never authorizes another.
func EraseToken(identity string, ids []string, includeLiked bool) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	h, err := hashstructure.Hash(struct {
		Identity string
		IDs      []string
		Liked    bool
	}{identity, sorted, includeLiked}, hashstructure.FormatV2, nil)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%08x", uint32(h^(h>>32)))
}

// PlanErase lists the account and resolves sel into an [ErasePlan] without writing anything.
func (e *Engine) PlanErase(ctx context.Context, session *services.AuthSession, sel selection.Selector) (*ErasePlan, error) {
	if session == nil {
		return nil, errors.Wrap(shared.ErrNotAuthenticated, "no session")
	}
	release, err := session.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return e.plan(ctx, session, sel, nil)
}

func (e *Engine) plan(
	ctx context.Context,
	session *services.AuthSession,
	sel selection.Selector,
	progress chan<- ProgressUpdate,
) (*ErasePlan, error) {
	selected, set, err := e.resolve(ctx, session.Library(), sel, progress)
	if err != nil {
		return nil, err
	}

	plan := &ErasePlan{Identity: session.Identity, IncludeLiked: set.IncludeLiked}
	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ID
		plan.Playlists = append(plan.Playlists, PlannedRemoval{
			ID:    p.ID,
			Name:  p.Name,
			Owned: p.Owner.ID == session.UserID(),
		})
	}
	plan.Token = EraseToken(session.Identity, ids, set.IncludeLiked)
	return plan, nil
}

// Erase removes the selected playlists, and liked songs when selected.
//
// confirmToken must equal the token of the plan for the same selection,
// otherwise [shared.ErrConfirmationRequired] is returned before any write.
// Owned playlists are deleted and followed ones unfollowed. Liked song ids
// are all collected before the first removal so paging is not disturbed.
func (e *Engine) Erase(
	ctx context.Context,
	session *services.AuthSession,
	sel selection.Selector,
	confirmToken string,
	progress chan<- ProgressUpdate,
) (*Report, error) {
	report, done, err := e.begin(session, models.OperationErase, progress)
	if err != nil {
		return nil, err
	}
	defer done()

	plan, err := e.plan(ctx, session, sel, progress)
	if err != nil {
		return report, report.abort(err)
	}
	if confirmToken == "" || confirmToken != plan.Token {
		err := errors.WithHintf(
			errors.Wrapf(shared.ErrConfirmationRequired, "erase of %d playlists from %q", len(plan.Playlists), plan.Identity),
			"review the plan and pass its token: --confirm %s", plan.Token,
		)
		return report, report.abort(err)
	}

	lib := session.Library()
	total := len(plan.Playlists)
	for i, p := range plan.Playlists {
		if ctx.Err() != nil {
			return report, report.abort(stopErr(ctx))
		}
		report.Items++

		if err := lib.UnfollowPlaylist(ctx, p.ID); err != nil {
			if fatal(ctx, err) {
				return report, report.abort(abortReason(ctx, err))
			}
			f := Failure{Phase: RemovePlaylist, PlaylistID: p.ID, Playlist: p.Name, Err: err}
			report.fail(f)
			e.sendProgress(progress, failureUpdate(RemovePlaylist, i+1, total, f))
			continue
		}

		result := PlaylistResult{SourceID: p.ID, Name: p.Name, Action: p.Action()}
		report.Playlists = append(report.Playlists, result)
		e.sendProgress(progress, removedPlaylistUpdate(i+1, total, result))
	}

	if !plan.IncludeLiked {
		return report, nil
	}
	if ctx.Err() != nil {
		return report, report.abort(stopErr(ctx))
	}

	report.Items++
	liked, _, err := e.collectLiked(ctx, lib)
	if err != nil {
		if fatal(ctx, err) {
			return report, report.abort(abortReason(ctx, err))
		}
		// Nothing is removed unless every liked id was collected.
		f := Failure{Phase: CollectLiked, Err: err}
		report.fail(f)
		e.sendProgress(progress, failureUpdate(CollectLiked, 1, 1, f))
		return report, nil
	}
	e.sendProgress(progress, collectedLikedUpdate(len(liked)))

	ids := make([]string, len(liked))
	for i, t := range liked {
		ids[i] = t.ProviderTrackID
	}
	if err := e.likedBatches(ctx, RemoveLiked, ids, lib.RemoveSavedTracks, report, progress); err != nil {
		return report, report.abort(err)
	}
	return report, nil
}
