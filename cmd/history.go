package main

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func snapshotCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Inspect snapshot files",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Render a snapshot as text, markdown or CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"f"},
						Usage:    "Snapshot file to read",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: text, markdown or csv",
						Value: string(formatter.FormatText),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to this file instead of stdout",
					},
				},
				Action: r.SnapshotShow,
			},
		},
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent runs from the journal",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of runs to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Only runs for this account",
			},
			&cli.StringFlag{
				Name:  "operation",
				Usage: "Only runs of this operation: export, import or erase",
			},
		},
		Action: r.History,
	}
}

// SnapshotShow renders a snapshot file.
func (r *Runner) SnapshotShow(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	snap, err := models.LoadSnapshot(cmd.String("input"))
	if err != nil {
		return err
	}

	path := cmd.String("output")
	if path == "" {
		return formatter.WriteSnapshot(r.output, snap, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(shared.ErrIO, "create %s: %v", path, err)
	}
	if err := formatter.WriteSnapshot(f, snap, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(shared.ErrIO, "close %s: %v", path, err)
	}
	return r.writePlain("✓ Wrote %s\n", path)
}

// History lists journal runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	switch op := cmd.String("operation"); op {
	case "", string(models.OperationExport), string(models.OperationImport), string(models.OperationErase):
	default:
		return errors.Wrapf(shared.ErrInvalidArgument, "unknown operation %q", op)
	}

	repo, err := r.runs()
	if err != nil {
		return err
	}

	runs, err := repo.List(map[string]any{
		"limit":     cmd.Int("limit"),
		"identity":  cmd.String("account"),
		"operation": cmd.String("operation"),
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		return r.writePlain("No runs recorded yet.\n")
	}
	return r.writePlain("%s\n", formatter.HistoryTable(runs, time.Now()))
}
