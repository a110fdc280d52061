package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const (
	exitFailure = 1
	exitPartial = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{})
	err := runner.App().Run(ctx, os.Args)
	if code := exitCode(err); code != 0 {
		reportError(os.Stderr, err)
		stop()
		os.Exit(code)
	}
}

// App builds the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:      "spotsync",
		Usage:     "Export, import and erase Spotify playlists and liked songs",
		Version:   "0.1.0",
		Writer:    r.output,
		ErrWriter: r.errOutput,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (TOML or YAML)",
				Value:   "config.toml",
				Sources: cli.EnvVars("SPOTSYNC_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Show progress and pick playlists in the terminal UI",
			},
			&cli.BoolFlag{
				Name:  "clean-cache",
				Usage: "Discard the cached token and authorize again",
			},
		},
		Before:   r.Before,
		After:    r.After,
		Commands: r.register(),
		// Errors are reported once by main, with their hints.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, exportCommand, importCommand, eraseCommand,
		snapshotCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// exitCode maps err onto the process status: partial failures exit 2, everything else 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, shared.ErrPartialOperation):
		return exitPartial
	default:
		return exitFailure
	}
}

func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, hint := range shared.Hints(err) {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
