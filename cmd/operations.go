package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
	"github.com/desertthunder/spotsync/internal/ui"
	"github.com/urfave/cli/v3"
)

func selectFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "select",
		Aliases: []string{"s"},
		Usage:   `Playlists to include: positions and ranges ("1,3-5"), "all", "public" or "private"`,
		Value:   value,
	}
}

func likedFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "liked",
		Usage: "Include liked songs",
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List an account's playlists with the positions used by --select",
		Flags: []cli.Flag{
			accountFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true},
		},
		Action: r.Playlists,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Capture playlists and liked songs into a snapshot file",
		Flags: []cli.Flag{
			accountFlag(),
			selectFlag("all"),
			likedFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Snapshot file to write",
				Value:   "snapshot.json",
			},
		},
		Action: r.Export,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Recreate playlists and liked songs from a snapshot file",
		Flags: []cli.Flag{
			accountFlag(),
			selectFlag("all"),
			likedFlag(),
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"f"},
				Usage:    "Snapshot file to read",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "no-images",
				Usage: "Do not restore custom playlist covers",
			},
		},
		Action: r.Import,
	}
}

// Playlists prints the account's playlists in listing order.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	session, err := r.session(ctx, cmd, "export")
	if err != nil {
		return err
	}

	playlists, err := r.newEngine().Playlists(ctx, session)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}
	if len(playlists) == 0 {
		return r.writePlain("No playlists found for %s\n", session.Identity)
	}
	return r.writePlain("%s\n", formatter.PlaylistTable(playlists))
}

// Export writes the selected playlists of the account to --output.
//
// Partial failures still produce a snapshot. An aborted export keeps what was
// collected in "<output>.partial" so the complete file is never overwritten.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	session, err := r.session(ctx, cmd, "export")
	if err != nil {
		return err
	}
	engine := r.newEngine()

	sel, err := r.selector(cmd, "Export from "+session.Identity, func() ([]services.SpotifySimplePlaylist, error) {
		return engine.Playlists(ctx, session)
	})
	if err != nil {
		return err
	}

	var snap *models.Snapshot
	report, err := r.run(ctx, "Exporting "+session.Identity, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.Report, error) {
		s, report, err := engine.Export(ctx, session, sel, progress)
		snap = s
		return report, err
	})
	if report == nil {
		return err
	}

	if snap != nil {
		path := cmd.String("output")
		if err != nil {
			path += ".partial"
		}
		if saveErr := snap.Save(path); saveErr != nil {
			return errors.CombineErrors(saveErr, err)
		}
		r.writePlain("✓ Snapshot written to %s\n", path)
	}

	r.writePlain("%s\n", formatter.ReportText(report))
	if err != nil {
		return err
	}
	return report.Err()
}

// Import recreates the selected snapshot records in the account.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	snap, err := models.LoadSnapshot(cmd.String("input"))
	if err != nil {
		return err
	}

	session, err := r.session(ctx, cmd, "import")
	if err != nil {
		return err
	}
	engine := r.newEngine(func(o *tasks.EngineOpts) { o.SkipCovers = cmd.Bool("no-images") })

	sel, err := r.selector(cmd, "Import into "+session.Identity, func() ([]services.SpotifySimplePlaylist, error) {
		return snapshotPlaylists(snap), nil
	})
	if err != nil {
		return err
	}

	report, err := r.run(ctx, "Importing into "+session.Identity, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.Report, error) {
		return engine.Import(ctx, session, snap, sel, progress)
	})
	if report == nil {
		return err
	}

	r.writePlain("%s\n", formatter.ReportText(report))
	if err != nil {
		return err
	}
	return report.Err()
}

// selector turns --select and --liked into a [selection.Selector]. With
// --interactive and no explicit --select the user picks from list instead.
func (r *Runner) selector(
	cmd *cli.Command,
	title string,
	list func() ([]services.SpotifySimplePlaylist, error),
) (selection.Selector, error) {
	liked := cmd.Bool("liked")
	if !r.interactive || cmd.IsSet("select") {
		expr := cmd.String("select")
		if expr == "" {
			if liked {
				return selection.NewSet(true), nil
			}
			return nil, errors.WithHint(
				errors.Wrap(shared.ErrMissingArgument, "nothing selected"),
				`pass --select (for example "1,3-5" or "all"), --liked, or --interactive`,
			)
		}
		return selection.Expression{Expr: expr, IncludeLiked: liked}, nil
	}

	playlists, err := list()
	if err != nil {
		return nil, err
	}
	expr, err := ui.Pick(title, playlists)
	if err != nil {
		return nil, err
	}
	if expr == "" {
		return selection.NewSet(liked), nil
	}
	return selection.Expression{Expr: expr, IncludeLiked: liked}, nil
}

// snapshotPlaylists presents snapshot records in the shape the picker lists.
func snapshotPlaylists(snap *models.Snapshot) []services.SpotifySimplePlaylist {
	playlists := make([]services.SpotifySimplePlaylist, len(snap.Playlists))
	for i, rec := range snap.Playlists {
		public := rec.IsPublic
		p := services.SpotifySimplePlaylist{
			ID:            rec.ProviderPlaylistID,
			Name:          rec.Name,
			Description:   rec.Description,
			Public:        &public,
			Collaborative: rec.IsCollaborative,
			Owner:         services.Owner{ID: rec.OwnerID},
		}
		p.Tracks.Total = len(rec.Tracks)
		playlists[i] = p
	}
	return playlists
}
