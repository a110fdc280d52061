package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/selection"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

func eraseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "erase",
		Usage: "Remove playlists and liked songs from an account",
		Description: "Prints the erase plan and its confirmation token first. Nothing is removed " +
			"until the token is confirmed, either with --confirm or at the terminal prompt.",
		Flags: []cli.Flag{
			accountFlag(),
			selectFlag(""),
			likedFlag(),
			&cli.StringFlag{
				Name:  "from",
				Usage: "Select the playlists named in this snapshot file",
			},
			&cli.StringFlag{
				Name:  "confirm",
				Usage: "Confirmation token printed with the plan",
			},
		},
		Action: r.Erase,
	}
}

// Erase plans the removal, asks for confirmation and then runs it.
func (r *Runner) Erase(ctx context.Context, cmd *cli.Command) error {
	if cmd.IsSet("from") && cmd.IsSet("select") {
		return errors.Wrap(shared.ErrInvalidArgument, "--from and --select cannot be combined")
	}

	session, err := r.session(ctx, cmd, "erase")
	if err != nil {
		return err
	}
	engine := r.newEngine()

	var sel selection.Selector
	if path := cmd.String("from"); path != "" {
		snap, err := models.LoadSnapshot(path)
		if err != nil {
			return err
		}
		sel = selection.FromSnapshot(snap, cmd.Bool("liked"))
	} else {
		sel, err = r.selector(cmd, "Erase from "+session.Identity, func() ([]services.SpotifySimplePlaylist, error) {
			return engine.Playlists(ctx, session)
		})
		if err != nil {
			return err
		}
	}

	plan, err := engine.PlanErase(ctx, session, sel)
	if err != nil {
		return err
	}
	r.writePlain("%s\n", formatter.ErasePlanText(plan))
	if plan.Empty() {
		return nil
	}

	token := cmd.String("confirm")
	if token == "" && r.terminal() {
		ok, err := r.confirm(ctx, plan)
		if err != nil {
			return err
		}
		if !ok {
			return r.writePlain("Erase cancelled, nothing was removed.\n")
		}
		token = plan.Token
	}

	report, err := r.run(ctx, "Erasing from "+session.Identity, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.Report, error) {
		return engine.Erase(ctx, session, sel, token, progress)
	})
	if report == nil {
		return err
	}
	if errors.Is(err, shared.ErrConfirmationRequired) {
		return err
	}

	r.writePlain("%s\n", formatter.ReportText(report))
	if err != nil {
		return err
	}
	return report.Err()
}

// confirmErase asks at the terminal. Aborting the form counts as a refusal.
func confirmErase(ctx context.Context, plan *tasks.ErasePlan) (bool, error) {
	var what []string
	if n := len(plan.Playlists); n > 0 {
		what = append(what, fmt.Sprintf("%d playlists", n))
	}
	if plan.IncludeLiked {
		what = append(what, "every liked song")
	}

	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Erase %s from %s?", strings.Join(what, " and "), plan.Identity)).
			Description("This cannot be undone. Export a snapshot first if you may want them back.").
			Affirmative("Erase").
			Negative("Cancel").
			Value(&ok),
	)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "confirmation prompt failed")
	}
	return ok, nil
}
