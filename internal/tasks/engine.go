package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/mitchellh/hashstructure/v2"
)

// Journal persists runs. [repositories.RunRepository] is the sqlite implementation.
type Journal = models.Repository[*models.Run]

// EngineOpts configures an [Engine].
type EngineOpts struct {
	Logger *log.Logger

	// PlaylistBatch and LibraryBatch cap the ids per write call. Zero means the provider limit.
	PlaylistBatch int
	LibraryBatch  int

	// ImportPause is waited between imported playlists.
	ImportPause time.Duration

	// SkipCovers disables restoring custom playlist covers on import.
	SkipCovers bool

	// Journal records every run when set. Journal errors are logged, never returned.
	Journal Journal

	// Sleep replaces the pause between playlists, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// EngineOptsFromConfig maps the api section onto [EngineOpts].
func EngineOptsFromConfig(cfg shared.APIConfig) EngineOpts {
	return EngineOpts{
		PlaylistBatch: cfg.PlaylistBatchSize,
		LibraryBatch:  cfg.LibraryBatchSize,
		ImportPause:   time.Duration(cfg.ImportPauseMS) * time.Millisecond,
	}
}

// Engine runs exports, imports and erases against one [services.AuthSession] at a time.
//
// Every operation runs on the caller's goroutine. Progress is reported on the
// optional channel without ever blocking; the returned [Report] is the
// authoritative outcome.
type Engine struct {
	opts   EngineOpts
	logger *log.Logger
}

// NewEngine creates an [Engine], filling in defaults.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.PlaylistBatch <= 0 || opts.PlaylistBatch > services.MaxPlaylistBatch {
		opts.PlaylistBatch = services.MaxPlaylistBatch
	}
	if opts.LibraryBatch <= 0 || opts.LibraryBatch > services.MaxLibraryBatch {
		opts.LibraryBatch = services.MaxLibraryBatch
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Engine{opts: opts, logger: opts.Logger}
}

// sendProgress sends a progress update through the channel without blocking
// and logs it at the update's level.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	e.logger.Log(update.Level, update.Message, "phase", update.Phase.String())
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// begin acquires the session and opens a journaled run. The returned func
// closes the run, reports it and releases the session.
func (e *Engine) begin(
	session *services.AuthSession,
	op models.Operation,
	progress chan<- ProgressUpdate,
) (*Report, func(), error) {
	if session == nil {
		return nil, nil, errors.Wrap(shared.ErrNotAuthenticated, "no session")
	}
	release, err := session.Acquire()
	if err != nil {
		return nil, nil, err
	}

	report := newReport(op, session.Identity)
	run := models.NewRun(op, session.Identity)
	if e.opts.Journal != nil {
		if err := e.opts.Journal.Create(run); err != nil {
			e.logger.Warn("could not journal run", "operation", op, "error", err)
			run = nil
		}
	}

	return report, func() {
		report.finish()
		e.record(run, report)
		e.sendProgress(progress, doneUpdate(report))
		release()
	}, nil
}

func (e *Engine) record(run *models.Run, report *Report) {
	if run == nil || e.opts.Journal == nil {
		return
	}
	run.SetCounts(report.Items, len(report.Failures))
	for _, p := range report.Playlists {
		run.AddPlaylist(models.RunPlaylist{
			SourceID:      p.SourceID,
			DestinationID: p.DestinationID,
			Name:          p.Name,
			Action:        p.Action,
			Tracks:        p.Tracks,
			ContentHash:   p.ContentHash,
			Partial:       p.Partial,
		})
	}
	run.Finish(report.Outcome(), report.Summary())
	if err := e.opts.Journal.Update(run); err != nil {
		e.logger.Warn("could not journal run", "run", run.ID(), "error", err)
	}
}

// Playlists lists the account's playlists in provider order, numbered the way
// selection expressions count them. It is read-only and not journaled.
func (e *Engine) Playlists(ctx context.Context, session *services.AuthSession) ([]services.SpotifySimplePlaylist, error) {
	if session == nil {
		return nil, errors.Wrap(shared.ErrNotAuthenticated, "no session")
	}
	release, err := session.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return e.inventory(ctx, session.Library())
}

// inventory lists every playlist of the account in provider order.
func (e *Engine) inventory(ctx context.Context, lib services.Library) ([]services.SpotifySimplePlaylist, error) {
	var out []services.SpotifySimplePlaylist
	for p, err := range lib.Playlists(ctx) {
		if err != nil {
			return nil, errors.Wrap(err, "listing playlists")
		}
		out = append(out, p)
	}
	return out, nil
}

// resolve lists the inventory and keeps the selected playlists, in listing order.
func (e *Engine) resolve(
	ctx context.Context,
	lib services.Library,
	sel selection.Selector,
	progress chan<- ProgressUpdate,
) ([]services.SpotifySimplePlaylist, selection.Set, error) {
	e.sendProgress(progress, listingUpdate())

	inventory, err := e.inventory(ctx, lib)
	if err != nil {
		return nil, selection.Set{}, err
	}

	set, err := sel.Select(Candidates(inventory))
	if err != nil {
		return nil, selection.Set{}, err
	}

	selected := make([]services.SpotifySimplePlaylist, 0, set.Len())
	for _, p := range inventory {
		if set.Contains(p.ID) {
			selected = append(selected, p)
		}
	}
	e.sendProgress(progress, listedUpdate(len(selected), len(inventory)))
	return selected, set, nil
}

// Candidates converts a listing into what the selection grammar evaluates.
func Candidates(inventory []services.SpotifySimplePlaylist) []selection.Playlist {
	out := make([]selection.Playlist, len(inventory))
	for i, p := range inventory {
		out[i] = selection.Playlist{ID: p.ID, Name: p.Name, Public: p.IsPublic()}
	}
	return out
}

// fatal reports whether err makes the remaining work of an operation meaningless.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, shared.ErrAuth) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// stopErr is the abort reason when the context ended.
func stopErr(ctx context.Context) error {
	return errors.Wrap(context.Cause(ctx), "operation cancelled")
}

// ContentHash fingerprints a playlist's name and ordered track ids.
func ContentHash(name string, trackIDs []string) string {
	h, err := hashstructure.Hash(struct {
		Name   string
		Tracks []string
	}{name, trackIDs}, hashstructure.FormatV2, nil)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", h)
}

// chunk splits ids into consecutive batches of at most size.
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		out = append(out, ids[start:min(start+size, len(ids))])
	}
	return out
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
